package view

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/till/internal/export"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

type exportState int

const (
	exportStateTimeframe exportState = iota
	exportStatePath
	exportStateExporting
	exportStateResult
)

type ExportModel struct {
	CommonModel
	exportService *export.Service
	tenantID      string

	state           exportState
	err             error
	timeframePicker TimeframePicker
	window          transaction.Window

	form    *huh.Form
	dir     *string
	spinner spinner.Model
	file    string
	summary string
}

func NewExportModel(svc *export.Service, tenantID string) ExportModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = accentStyle

	dir := "./exports"

	return ExportModel{
		exportService:   svc,
		tenantID:        tenantID,
		state:           exportStateTimeframe,
		timeframePicker: NewTimeframePicker(false),
		dir:             &dir,
		spinner:         s,
	}
}

func (m ExportModel) Title() string { return "Export Transactions" }

func (m ExportModel) ShortHelp() string {
	switch m.state {
	case exportStateResult:
		return "Esc: back to menu"
	case exportStateExporting:
		return "Exporting..."
	}

	return "Esc: back | Enter: confirm"
}

func (m ExportModel) Init() tea.Cmd {
	return nil
}

func (m ExportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if tfMsg, ok := msg.(TimeframeSelectedMsg); ok {
		m.window = tfMsg.Window
		m.form = m.buildPathForm()
		m.state = exportStatePath

		return m, m.form.Init()
	}

	switch m.state {
	case exportStateTimeframe:
		return m.updateTimeframe(msg)
	case exportStatePath:
		return m.updatePath(msg)
	case exportStateExporting:
		return m.updateExporting(msg)
	case exportStateResult:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
			return m, Back
		}
	}

	return m, nil
}

func (m ExportModel) updateTimeframe(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc && m.timeframePicker.IsSelecting() {
			return m, Back
		}
	}

	var cmd tea.Cmd
	m.timeframePicker, cmd = m.timeframePicker.Update(msg)

	return m, cmd
}

func (m ExportModel) updatePath(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = exportStateTimeframe
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

	m.state = exportStateExporting
	m.err = nil

	return m, tea.Batch(m.spinner.Tick, m.runExportCmd(m.window, *m.dir))
}

func (m ExportModel) updateExporting(msg tea.Msg) (tea.Model, tea.Cmd) {
	if result, ok := msg.(exportResultMsg); ok {
		m.state = exportStateResult
		m.err = result.err
		m.file = result.file
		m.summary = result.summary

		return m, nil
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)

	return m, cmd
}

func (m ExportModel) buildPathForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("path").
				Title("Output Directory").
				Description("Created if it doesn't exist").
				Placeholder("./exports").
				Value(m.dir),
		),
	).WithWidth(50).WithShowHelp(false)
}

func (m ExportModel) View() string {
	switch m.state {
	case exportStateTimeframe:
		return paddedStyle.Render(m.timeframePicker.View())
	case exportStatePath:
		return paddedStyle.Render(m.form.View())
	case exportStateExporting:
		return paddedStyle.Render(fmt.Sprintf("%s Exporting transactions...", m.spinner.View()))
	case exportStateResult:
		return m.viewResult()
	}

	return ""
}

func (m ExportModel) viewResult() string {
	if m.err != nil {
		return paddedStyle.Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return paddedStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			successStyle.Bold(true).Render("Export Complete!"),
			"",
			faintStyle.Render(m.file),
			"",
			m.summary,
		),
	)
}

type exportResultMsg struct {
	file    string
	summary string
	err     error
}

const exportTimeout = 2 * time.Minute

func (m ExportModel) runExportCmd(w transaction.Window, dir string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exportResultMsg{err: fmt.Errorf("creating %s: %w", dir, err)}
		}

		name := filepath.Join(dir, fmt.Sprintf("transactions_%s_%s.csv",
			w.Start.Format("20060102"), w.End.Format("20060102")))

		f, err := os.Create(name)
		if err != nil {
			return exportResultMsg{err: fmt.Errorf("creating %s: %w", name, err)}
		}
		defer f.Close()

		sum, err := m.exportService.Export(ctx, m.tenantID, w.Start, w.End, f)
		if err != nil {
			return exportResultMsg{err: err}
		}

		return exportResultMsg{file: name, summary: m.exportService.Format(sum)}
	}
}
