package view

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/MrJamesThe3rd/till/internal/transaction"
)

type purgeState int

const (
	purgeStateTimeframe purgeState = iota
	purgeStateConfirm
	purgeStateRunning
	purgeStateResult
)

// PurgeModel deletes the transactions of a chosen range after confirmation.
type PurgeModel struct {
	CommonModel
	txService *transaction.Service
	tenantID  string

	state           purgeState
	timeframePicker TimeframePicker
	form            *huh.Form
	spinner         spinner.Model

	window  transaction.Window
	all     bool
	confirm *bool

	result transaction.PurgeResult
	err    error
}

func NewPurgeModel(txSvc *transaction.Service, tenantID string) PurgeModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = accentStyle

	return PurgeModel{
		txService:       txSvc,
		tenantID:        tenantID,
		timeframePicker: NewTimeframePicker(true),
		spinner:         s,
		confirm:         new(bool),
	}
}

func (m PurgeModel) Title() string { return "Delete Transactions" }

func (m PurgeModel) ShortHelp() string {
	switch m.state {
	case purgeStateRunning:
		return "Deleting..."
	case purgeStateResult:
		return "Esc: back to menu"
	}

	return "Esc: back | Enter: confirm"
}

func (m PurgeModel) Init() tea.Cmd {
	return nil
}

func (m PurgeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if tfMsg, ok := msg.(TimeframeSelectedMsg); ok {
		m.window = tfMsg.Window
		m.all = tfMsg.All
		*m.confirm = false
		m.form = m.buildConfirmForm()
		m.state = purgeStateConfirm

		return m, m.form.Init()
	}

	switch m.state {
	case purgeStateTimeframe:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.timeframePicker.IsSelecting() {
			return m, Back
		}

		var cmd tea.Cmd
		m.timeframePicker, cmd = m.timeframePicker.Update(msg)

		return m, cmd

	case purgeStateConfirm:
		return m.updateConfirm(msg)

	case purgeStateRunning:
		if result, ok := msg.(purgeResultMsg); ok {
			m.state = purgeStateResult
			m.result, m.err = result.res, result.err

			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd

	case purgeStateResult:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
			return m, Back
		}
	}

	return m, nil
}

func (m PurgeModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = purgeStateTimeframe
		m.timeframePicker.Reset()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if !*m.confirm {
		m.state = purgeStateTimeframe
		m.timeframePicker.Reset()

		return m, nil
	}

	m.state = purgeStateRunning

	return m, tea.Batch(m.spinner.Tick, m.runCmd())
}

func (m PurgeModel) scope() string {
	if m.all {
		return "ALL transactions"
	}

	return fmt.Sprintf("transactions from %s to %s", FormatDate(m.window.Start), FormatDate(m.window.End))
}

func (m PurgeModel) buildConfirmForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Delete " + m.scope() + "?").
				Description("This cannot be undone.").
				Affirmative("Delete").
				Negative("Cancel").
				Value(m.confirm),
		),
	).WithWidth(50).WithShowHelp(false)
}

func (m PurgeModel) View() string {
	switch m.state {
	case purgeStateTimeframe:
		return paddedStyle.Render(m.timeframePicker.View())
	case purgeStateConfirm:
		return paddedStyle.Render(m.form.View())
	case purgeStateRunning:
		return paddedStyle.Render(fmt.Sprintf("%s Deleting %s...", m.spinner.View(), m.scope()))
	case purgeStateResult:
		if m.err != nil {
			return paddedStyle.Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		}

		if m.result.NothingFound() {
			return paddedStyle.Render(faintStyle.Render("No records found."))
		}

		return paddedStyle.Render(successStyle.Render(fmt.Sprintf("Deleted %d records.", m.result.Deleted)))
	}

	return ""
}

type purgeResultMsg struct {
	res transaction.PurgeResult
	err error
}

const purgeTimeout = 5 * time.Minute

func (m PurgeModel) runCmd() tea.Cmd {
	w, all := m.window, m.all

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()

		if all {
			res, err := m.txService.ClearAll(ctx, m.tenantID)
			return purgeResultMsg{res: res, err: err}
		}

		res, err := m.txService.DeleteByDateRange(ctx, m.tenantID, w.Start, w.End)

		return purgeResultMsg{res: res, err: err}
	}
}
