package view

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/till/internal/notify"
)

// View is the interface that all TUI screens implement.
type View interface {
	tea.Model
	Title() string
	ShortHelp() string
}

// CommonModel is embedded by all views.
type CommonModel struct{}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

// NoticeMsg carries a notice from a background service to the screen.
type NoticeMsg notify.Notice

// WaitNotice blocks until the next notice arrives on ch.
func WaitNotice(ch <-chan notify.Notice) tea.Cmd {
	return func() tea.Msg {
		return NoticeMsg(<-ch)
	}
}

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	paddedStyle  = lipgloss.NewStyle().Padding(1)
)

// RenderNotice styles n by level.
func RenderNotice(n NoticeMsg) string {
	switch n.Level {
	case notify.LevelError:
		if n.Err != nil {
			return errorStyle.Render(n.Message + ": " + n.Err.Error())
		}

		return errorStyle.Render(n.Message)
	case notify.LevelSuccess:
		return successStyle.Render(n.Message)
	}

	return faintStyle.Render(n.Message)
}
