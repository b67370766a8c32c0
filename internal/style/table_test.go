package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/W1ndR1dr/flowforge/internal/registry"
)

func TestTableRender(t *testing.T) {
	out := NewTable(
		Column{Name: "ID", Width: 12},
		Column{Name: "STATUS", Width: 11},
		Column{Name: "PRI", Width: 3, Align: AlignRight},
	).
		AddRow("dark-mode", "planned", "2").
		AddRow("a-very-long-feature-identifier", "review", "0").
		Render()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4) // header, separator, two rows
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[2], "dark-mode")
	assert.Contains(t, lines[3], "a-very-lo...")
	assert.NotContains(t, lines[3], "identifier")

	// right alignment pads on the left
	assert.True(t, strings.HasSuffix(stripAnsi(lines[2]), "  2"))
}

func TestTable_ShortRowsPadded(t *testing.T) {
	out := NewTable(Column{Name: "A", Width: 3}, Column{Name: "B", Width: 3}).
		AddRow("x").
		Render()
	assert.Contains(t, out, "x")
}

func TestStatus_PlainWithoutTTY(t *testing.T) {
	// test processes never have a TTY on stdout
	assert.Equal(t, "review", Status(registry.StatusReview))
}

func TestStripAnsi(t *testing.T) {
	styled := "\x1b[1mbold\x1b[0m"
	assert.Equal(t, "bold", stripAnsi(styled))
}
