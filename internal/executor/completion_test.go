package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

const completeOutput = `Working on the login form...
Done with the UI layer.
IMPLEMENTATION_COMPLETE

Files changed:
- src/login.js
- src/session.js

What was built:
A login form with session persistence
and a logout button.

How to verify:
npm test
`

func TestParseCompletion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		waitErr error
		success bool
		reason  string
	}{
		{"sentinel and zero exit", completeOutput, nil, true, ""},
		{"sentinel but nonzero exit", completeOutput, errors.New("exit status 1"), false, "exited with an error"},
		{"zero exit without sentinel", "did some work\n", nil, false, "without printing the completion token"},
		{"nonzero exit without sentinel", "crash\n", errors.New("exit status 2"), false, "exited with an error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseCompletion(tt.output, tt.waitErr)
			assert.Equal(t, tt.success, out.Success)
			if tt.reason != "" {
				assert.Contains(t, out.FailureReason, tt.reason)
			}
		})
	}
}

func TestParseCompletion_FilesAndSummary(t *testing.T) {
	out := ParseCompletion(completeOutput, nil)
	assert.Equal(t, []string{"src/login.js", "src/session.js"}, out.FilesChanged)
	assert.Equal(t, "A login form with session persistence and a logout button.", out.Summary)
}

func TestParseFilesChanged(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{"no block", "nothing here\n", nil},
		{"heading without items", "Files changed:\nnot a list\n", nil},
		{"star bullets", "Files changed:\n* a.go\n* b.go\n", []string{"a.go", "b.go"}},
		{"stops at non-list line", "Files changed:\n- a.go\ndone\n- b.go\n", []string{"a.go"}},
		{"blank line after heading", "Files changed:\n\n- a.go\n", []string{"a.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFilesChanged(tt.output))
		})
	}
}

func TestParseSummary_StopsAtVerify(t *testing.T) {
	out := "What was built: a thing\nwith two lines\nHow to verify:\nrun it\n"
	assert.Equal(t, "a thing with two lines", parseSummary(out))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("webapp", "dark-mode", "Add a dark mode toggle.", "senior frontend engineer")
	assert.Contains(t, p, `"webapp"`)
	assert.Contains(t, p, "Add a dark mode toggle.")
	assert.Contains(t, p, "senior frontend engineer")
	assert.Contains(t, p, Sentinel)

	// no persona, empty spec
	p = BuildPrompt("webapp", "dark-mode", "", "")
	assert.NotContains(t, p, "persona")
	assert.Contains(t, p, "dark-mode")
}
