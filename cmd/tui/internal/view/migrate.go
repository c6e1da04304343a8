package view

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/MrJamesThe3rd/till/internal/migrate"
)

type migrateState int

const (
	migrateStateConfirm migrateState = iota
	migrateStateRunning
	migrateStateResult
)

// MigrateModel copies the tenant's legacy documents after confirmation.
type MigrateModel struct {
	CommonModel
	migrator *migrate.Migrator
	tenantID string

	state   migrateState
	form    *huh.Form
	confirm *bool
	spinner spinner.Model
	result  migrate.Result
}

func NewMigrateModel(migrator *migrate.Migrator, tenantID string) MigrateModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = accentStyle

	confirm := new(bool)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Copy the legacy records of %s?", tenantID)).
				Description("Sources are kept. Running it again is safe.").
				Affirmative("Migrate").
				Negative("Cancel").
				Value(confirm),
		),
	).WithWidth(50).WithShowHelp(false)

	return MigrateModel{
		migrator: migrator,
		tenantID: tenantID,
		form:     form,
		confirm:  confirm,
		spinner:  s,
	}
}

func (m MigrateModel) Title() string { return "Migrate Legacy Data" }

func (m MigrateModel) ShortHelp() string {
	if m.state == migrateStateRunning {
		return "Migrating..."
	}

	return "Esc: back"
}

func (m MigrateModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m MigrateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.state != migrateStateRunning {
		return m, Back
	}

	switch m.state {
	case migrateStateConfirm:
		form, cmd := m.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.form = f
		}

		if m.form.State != huh.StateCompleted {
			return m, cmd
		}

		if !*m.confirm {
			return m, Back
		}

		m.state = migrateStateRunning

		return m, tea.Batch(m.spinner.Tick, m.runCmd())

	case migrateStateRunning:
		if res, ok := msg.(migrateResultMsg); ok {
			m.state = migrateStateResult
			m.result = migrate.Result(res)

			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m MigrateModel) View() string {
	switch m.state {
	case migrateStateConfirm:
		return paddedStyle.Render(m.form.View())
	case migrateStateRunning:
		return paddedStyle.Render(m.spinner.View() + " Migrating...")
	}

	if !m.result.OK() {
		return paddedStyle.Render(errorStyle.Render(m.result.String()) +
			"\n\n" + faintStyle.Render("Nothing is lost. Run the migration again to finish."))
	}

	return paddedStyle.Render(successStyle.Render(m.result.String()))
}

type migrateResultMsg migrate.Result

const migrateTimeout = 10 * time.Minute

func (m MigrateModel) runCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()

		return migrateResultMsg(m.migrator.Migrate(ctx, m.tenantID))
	}
}
