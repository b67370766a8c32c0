package executor

import (
	"fmt"
	"strings"
)

// Outcome is the parsed result of a finished execution.
type Outcome struct {
	Success       bool
	FilesChanged  []string
	Summary       string
	FailureReason string
}

// ParseCompletion scans the accumulated child output. Success requires
// both the completion sentinel and a zero exit code. The changed-file
// list and summary are best-effort: their absence does not fail a run.
func ParseCompletion(output string, waitErr error) Outcome {
	out := Outcome{
		FilesChanged: parseFilesChanged(output),
		Summary:      parseSummary(output),
	}

	sawSentinel := strings.Contains(output, Sentinel)
	switch {
	case waitErr != nil && sawSentinel:
		out.FailureReason = fmt.Sprintf("assistant printed the completion token but exited with an error: %v", waitErr)
	case waitErr != nil:
		out.FailureReason = fmt.Sprintf("assistant exited with an error: %v", waitErr)
	case !sawSentinel:
		out.FailureReason = "assistant exited without printing the completion token"
	default:
		out.Success = true
	}
	return out
}

// parseFilesChanged collects list items following a "Files changed:"
// heading, stopping at the first non-list line.
func parseFilesChanged(output string) []string {
	var files []string
	inBlock := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inBlock {
			if strings.HasPrefix(trimmed, "Files changed:") {
				inBlock = true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			files = append(files, strings.TrimSpace(trimmed[2:]))
			continue
		}
		if trimmed == "" && len(files) == 0 {
			// tolerate a blank line between the heading and the list
			continue
		}
		break
	}
	return files
}

// parseSummary captures the "What was built:" block up to the next blank
// line or a "How to verify:" heading.
func parseSummary(output string) string {
	var lines []string
	inBlock := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inBlock {
			if strings.HasPrefix(trimmed, "What was built:") {
				inBlock = true
				if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "What was built:")); rest != "" {
					lines = append(lines, rest)
				}
			}
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "How to verify:") {
			break
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, " ")
}
