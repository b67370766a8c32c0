// Package style provides consistent terminal styling using Lipgloss.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// Base styles shared across commands.
var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Faint(true)
	Green   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	Yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	Blue    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	Magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	Red     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// IsTTY reports whether stdout is a terminal. Non-TTY output (pipes,
// CI) is rendered without styling.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Status renders a feature status with its conventional color.
func Status(s registry.Status) string {
	if !IsTTY() {
		return string(s)
	}
	return statusStyle(s).Render(string(s))
}

func statusStyle(s registry.Status) lipgloss.Style {
	switch s {
	case registry.StatusPlanned:
		return Blue
	case registry.StatusInProgress:
		return Yellow
	case registry.StatusReview:
		return Magenta
	case registry.StatusCompleted:
		return Green
	case registry.StatusBlocked:
		return Red
	}
	return Dim
}
