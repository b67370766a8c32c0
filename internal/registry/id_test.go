package registry

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Dark mode", "dark-mode"},
		{"Add OAuth2 login!", "add-oauth2-login"},
		{"  spaced   out  ", "spaced-out"},
		{"under_score__run", "under-score-run"},
		{"Mixed -_ separators", "mixed-separators"},
		{"--leading and trailing--", "leading-and-trailing"},
		{"café au lait", "caf-au-lait"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := GenerateID(tt.title); got != tt.want {
			t.Errorf("GenerateID(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestGenerateID_Truncation(t *testing.T) {
	long := strings.Repeat("abcde ", 20)
	id := GenerateID(long)
	if len([]rune(id)) > 50 {
		t.Errorf("expected id <= 50 runes, got %d", len([]rune(id)))
	}
	if strings.HasSuffix(id, "-") || strings.HasPrefix(id, "-") {
		t.Errorf("expected trimmed id, got %q", id)
	}
}

func TestGenerateID_Idempotent(t *testing.T) {
	for _, title := range []string{"Dark mode", "Add OAuth2 login!", "a--b__c", strings.Repeat("x ", 60)} {
		once := GenerateID(title)
		if twice := GenerateID(once); twice != once {
			t.Errorf("GenerateID not idempotent for %q: %q != %q", title, twice, once)
		}
	}
}
