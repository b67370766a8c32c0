package merge

import (
	"fmt"
	"strings"
)

// ConflictPrompt renders a human-readable resolution document for a
// feature's conflicting files. Pure function of the conflict set.
func ConflictPrompt(featureID, branch, trunk string, conflictFiles []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Merge conflict: %s\n\n", featureID)
	fmt.Fprintf(&b, "Branch `%s` does not merge cleanly into `%s`.\n\n", branch, trunk)
	b.WriteString("## Conflicting files\n\n")
	for _, f := range conflictFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n## Suggested resolution\n\n")
	fmt.Fprintf(&b, "1. Open the feature worktree and rebase it: `git rebase %s`\n", trunk)
	b.WriteString("2. For each file above, resolve the conflict markers (<<<<<<<, =======, >>>>>>>)\n")
	b.WriteString("3. Stage the resolved files with `git add` and run `git rebase --continue`\n")
	fmt.Fprintf(&b, "4. Re-run the merge check for %s\n", featureID)
	b.WriteString("\nPrefer the feature branch's intent for feature code and trunk's version for shared infrastructure, unless the feature deliberately changed it.\n")

	return b.String()
}
