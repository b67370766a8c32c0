package executor

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are implementing a feature for the project %q.%s

## Specification

%s

## Instructions

Implement the specification in the current working directory. Commit your
work as you go with clear messages.

When you are done, print a report in exactly this shape:

IMPLEMENTATION_COMPLETE

Files changed:
- path/to/first/file
- path/to/second/file

What was built:
One short paragraph describing the implementation.

How to verify:
Commands or steps a reviewer can run.
`

// BuildPrompt renders the implementation prompt for one feature run. The
// persona line is omitted when the project has none configured.
func BuildPrompt(projectName, featureID, specText, persona string) string {
	personaLine := ""
	if persona != "" {
		personaLine = fmt.Sprintf(" Adopt the %s persona.", persona)
	}
	spec := strings.TrimSpace(specText)
	if spec == "" {
		spec = "(no specification provided; feature id: " + featureID + ")"
	}
	return fmt.Sprintf(promptTemplate, projectName, personaLine, spec)
}
