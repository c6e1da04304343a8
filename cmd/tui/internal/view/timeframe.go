package view

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrJamesThe3rd/till/internal/transaction"
)

// Timeframe is a predefined or custom date range.
type Timeframe int

const (
	TimeframeThisMonth Timeframe = iota
	TimeframeLastMonth
	TimeframeThisWeek
	TimeframeLastWeek
	TimeframeCustom
	TimeframeAll
)

func (t Timeframe) String() string {
	switch t {
	case TimeframeThisWeek:
		return "This Week"
	case TimeframeLastWeek:
		return "Last Week"
	case TimeframeThisMonth:
		return "This Month"
	case TimeframeLastMonth:
		return "Last Month"
	case TimeframeCustom:
		return "Custom Range"
	case TimeframeAll:
		return "Everything"
	}

	return "Unknown"
}

// Window resolves a predefined timeframe relative to now. Weeks start on
// Monday.
func (t Timeframe) Window(now time.Time) transaction.Window {
	monday := now.AddDate(0, 0, -(int(now.Weekday())+6)%7)

	switch t {
	case TimeframeThisWeek:
		return transaction.NewWindow(monday, monday.AddDate(0, 0, 6))
	case TimeframeLastWeek:
		return transaction.NewWindow(monday.AddDate(0, 0, -7), monday.AddDate(0, 0, -1))
	case TimeframeLastMonth:
		return transaction.CurrentMonth(now).Shift(-1)
	}

	return transaction.CurrentMonth(now)
}

// TimeframeSelectedMsg is emitted once a range is chosen. Window is zero
// when All is true.
type TimeframeSelectedMsg struct {
	Window transaction.Window
	All    bool
}

type timeframeState int

const (
	timeframeStateSelect timeframeState = iota
	timeframeStateCustom
)

// TimeframePicker selects a date range, optionally offering Everything.
type TimeframePicker struct {
	state    timeframeState
	selected Timeframe
	last     Timeframe

	startInput textinput.Model
	endInput   textinput.Model
	focusIndex int

	err error
}

func NewTimeframePicker(allowAll bool) TimeframePicker {
	si := textinput.New()
	si.Placeholder = "YYYY-MM-DD"
	si.CharLimit = 10
	si.Width = 12
	si.Prompt = "Start Date: "

	ei := textinput.New()
	ei.Placeholder = "YYYY-MM-DD"
	ei.CharLimit = 10
	ei.Width = 12
	ei.Prompt = "End Date:   "

	last := TimeframeCustom
	if allowAll {
		last = TimeframeAll
	}

	return TimeframePicker{
		state:      timeframeStateSelect,
		selected:   TimeframeThisMonth,
		last:       last,
		startInput: si,
		endInput:   ei,
	}
}

func (m TimeframePicker) Init() tea.Cmd {
	return nil
}

func (m TimeframePicker) Update(msg tea.Msg) (TimeframePicker, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch m.state {
		case timeframeStateSelect:
			return m.updateSelect(keyMsg)
		case timeframeStateCustom:
			if next, cmd, handled := m.updateCustom(keyMsg); handled {
				return next, cmd
			}
		}
	}

	if m.state == timeframeStateCustom {
		return m.updateInputs(msg)
	}

	return m, nil
}

func (m TimeframePicker) updateSelect(msg tea.KeyMsg) (TimeframePicker, tea.Cmd) {
	switch msg.Type {
	case tea.KeyUp:
		if m.selected > TimeframeThisMonth {
			m.selected--
		}
	case tea.KeyDown:
		if m.selected < m.last {
			m.selected++
		}
	case tea.KeyEnter:
		switch m.selected {
		case TimeframeCustom:
			m.state = timeframeStateCustom
			m.focusIndex = 0
			m.startInput.Focus()

			return m, textinput.Blink
		case TimeframeAll:
			return m, func() tea.Msg { return TimeframeSelectedMsg{All: true} }
		}

		w := m.selected.Window(time.Now())

		return m, func() tea.Msg { return TimeframeSelectedMsg{Window: w} }
	}

	return m, nil
}

func (m TimeframePicker) updateCustom(msg tea.KeyMsg) (TimeframePicker, tea.Cmd, bool) {
	switch msg.String() {
	case "tab", "shift+tab":
		m.focusIndex = (m.focusIndex + 1) % 2
		m.startInput.Blur()
		m.endInput.Blur()

		if m.focusIndex == 0 {
			m.startInput.Focus()
		} else {
			m.endInput.Focus()
		}

		return m, textinput.Blink, true

	case "enter":
		w, err := parseRange(m.startInput.Value(), m.endInput.Value())
		if err != nil {
			m.err = err
			return m, nil, true
		}

		m.err = nil

		return m, func() tea.Msg { return TimeframeSelectedMsg{Window: w} }, true

	case "esc":
		m.state = timeframeStateSelect
		m.err = nil

		return m, nil, true
	}

	return m, nil, false
}

func parseRange(startText, endText string) (transaction.Window, error) {
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(startText))
	if err != nil {
		return transaction.Window{}, errors.New("invalid start date (YYYY-MM-DD)")
	}

	end, err := time.Parse(time.DateOnly, strings.TrimSpace(endText))
	if err != nil {
		return transaction.Window{}, errors.New("invalid end date (YYYY-MM-DD)")
	}

	if end.Before(start) {
		return transaction.Window{}, errors.New("end date is before start date")
	}

	return transaction.NewWindow(start, end), nil
}

func (m TimeframePicker) updateInputs(msg tea.Msg) (TimeframePicker, tea.Cmd) {
	var cmds []tea.Cmd

	var c tea.Cmd

	m.startInput, c = m.startInput.Update(msg)
	cmds = append(cmds, c)
	m.endInput, c = m.endInput.Update(msg)
	cmds = append(cmds, c)

	return m, tea.Batch(cmds...)
}

func (m TimeframePicker) View() string {
	errStr := ""
	if m.err != nil {
		errStr = errorStyle.Render(fmt.Sprintf("\n\nError: %v", m.err))
	}

	if m.state == timeframeStateCustom {
		return fmt.Sprintf(
			"Enter Custom Range:\n\n%s\n%s\n\n(Enter to confirm, Tab to switch, Esc to back)%s",
			m.startInput.View(),
			m.endInput.View(),
			errStr,
		)
	}

	var sb strings.Builder

	sb.WriteString("Select Timeframe:\n\n")

	for i := TimeframeThisMonth; i <= m.last; i++ {
		cursor := " "
		if m.selected == i {
			cursor = ">"
		}

		fmt.Fprintf(&sb, "%s %s\n", cursor, i)
	}

	sb.WriteString("\n(Enter to select, Esc to back)")

	return sb.String() + errStr
}

// IsSelecting reports whether Esc would leave the picker.
func (m TimeframePicker) IsSelecting() bool {
	return m.state == timeframeStateSelect
}

func (m *TimeframePicker) Reset() {
	m.state = timeframeStateSelect
	m.selected = TimeframeThisMonth
	m.err = nil
	m.startInput.SetValue("")
	m.endInput.SetValue("")
}
