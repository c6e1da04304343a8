package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/till/internal/checkout"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

type listState int

const (
	listStateBrowse listState = iota
	listStateEdit
	listStateSettle
)

type snapshotMsg struct {
	txs []transaction.Transaction
	err error
}

// ListModel shows the live window of one month and follows store changes.
type ListModel struct {
	CommonModel
	ctx      context.Context
	tenantID string
	session  *transaction.Service
	checkout *checkout.Service
	updates  chan snapshotMsg

	state  listState
	table  table.Model
	txs    []transaction.Transaction
	window transaction.Window
	form   *huh.Form
	undo   *transaction.Undo

	loading bool
	err     error
	status  string

	// Forms write through this pointer; the model itself is copied on
	// every update.
	fields *formFields
}

type formFields struct {
	desc   string
	method string
}

func NewListModel(ctx context.Context, txSvc *transaction.Service, checkouts *checkout.Service, tenantID string) ListModel {
	columns := []table.Column{
		{Title: "Date", Width: 12},
		{Title: "Type", Width: 11},
		{Title: "Status", Width: 10},
		{Title: "Customer", Width: 16},
		{Title: "Total", Width: 10},
		{Title: "Due", Width: 10},
		{Title: "Details", Width: 36},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	updates := make(chan snapshotMsg, 1)

	session := txSvc.Session(transaction.WithListener(func(txs []transaction.Transaction, err error) {
		// Keep only the newest snapshot for the UI loop.
		select {
		case <-updates:
		default:
		}

		updates <- snapshotMsg{txs: txs, err: err}
	}))

	return ListModel{
		ctx:      ctx,
		tenantID: tenantID,
		session:  session,
		checkout: checkouts,
		updates:  updates,
		table:    t,
		window:   session.Window(),
		loading:  true,
		fields:   &formFields{},
	}
}

func (m ListModel) Title() string { return "Live Transactions" }

func (m ListModel) ShortHelp() string {
	if m.state != listStateBrowse {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | [/]: month | e: edit | s: settle | x: delete | u: undo"
}

func (m ListModel) Init() tea.Cmd {
	return tea.Batch(m.subscribeCmd(), m.waitSnapshot())
}

func (m ListModel) waitSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.updates:
			return s
		case <-m.ctx.Done():
			return nil
		}
	}
}

type subscribeResultMsg struct{ err error }

func (m ListModel) subscribeCmd() tea.Cmd {
	w := m.window

	return func() tea.Msg {
		return subscribeResultMsg{err: m.session.Subscribe(m.ctx, m.tenantID, w)}
	}
}

func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case subscribeResultMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
		}

		return m, nil

	case snapshotMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.txs = msg.txs
			m.refreshTable()
		}

		return m, m.waitSnapshot()

	case actionMsg:
		m.status = msg.status
		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Error: %v", msg.err))
		}

		if msg.undo != nil {
			m.undo = msg.undo
		}

		if msg.restored {
			m.undo = nil
		}

		m.state = listStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	switch m.state {
	case listStateBrowse:
		return m.updateBrowse(msg)
	case listStateEdit, listStateSettle:
		return m.updateForm(msg)
	}

	return m, nil
}

func (m ListModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if ok {
		switch keyMsg.String() {
		case "esc":
			m.session.Unsubscribe()
			return m, Back
		case "[", "]":
			shift := -1
			if keyMsg.String() == "]" {
				shift = 1
			}

			m.window = m.window.Shift(shift)
			m.loading = true
			m.status = ""

			return m, m.subscribeCmd()
		case "e":
			return m.startEdit()
		case "s":
			return m.startSettle()
		case "x":
			return m, m.deleteCmd()
		case "u":
			return m, m.restoreCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m ListModel) selected() (transaction.Transaction, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.txs) {
		return transaction.Transaction{}, false
	}

	return m.txs[idx], true
}

func (m ListModel) startEdit() (tea.Model, tea.Cmd) {
	tx, ok := m.selected()
	if !ok {
		return m, nil
	}

	m.fields.desc = tx.Description
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("description").
				Title("Description").
				Value(&m.fields.desc).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("description cannot be empty")
					}

					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = listStateEdit
	m.table.Blur()

	return m, m.form.Init()
}

func (m ListModel) startSettle() (tea.Model, tea.Cmd) {
	tx, ok := m.selected()
	if !ok {
		return m, nil
	}

	if tx.Payment.Balance.IsZero() && tx.Status == transaction.StatusCompleted {
		m.status = "Already settled."
		return m, nil
	}

	m.fields.method = "cash"
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("method").
				Title(fmt.Sprintf("Collect %s from %s", FormatAmount(tx.Payment.Balance), customerName(tx))).
				Options(huh.NewOptions("cash", "upi", "card")...).
				Value(&m.fields.method),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = listStateSettle
	m.table.Blur()

	return m, m.form.Init()
}

func (m ListModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = listStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if m.state == listStateSettle {
		return m, m.settleCmd()
	}

	return m, m.saveCmd()
}

func (m ListModel) View() string {
	if m.loading {
		return paddedStyle.Render("Loading transactions...")
	}

	header := fmt.Sprintf("[ %s ]  %s to %s",
		accentStyle.Render(m.window.Start.Format("January 2006")),
		FormatDate(m.window.Start), FormatDate(m.window.End))

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state != listStateBrowse && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.err != nil {
		content = errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n" + content
	}

	if m.status != "" {
		content = faintStyle.Render(m.status) + "\n" + content
	}

	return paddedStyle.Render(content)
}

func customerName(tx transaction.Transaction) string {
	if tx.Customer == nil || tx.Customer.Name == "" {
		return "walk-in"
	}

	return tx.Customer.Name
}

func details(tx transaction.Transaction) string {
	if len(tx.Items) == 0 {
		return tx.Description
	}

	names := make([]string, len(tx.Items))
	for i, it := range tx.Items {
		names[i] = fmt.Sprintf("%s x%d", it.Name, it.Quantity)
	}

	return strings.Join(names, ", ")
}

func (m *ListModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.txs))
	for _, tx := range m.txs {
		rows = append(rows, table.Row{
			FormatDate(tx.Date),
			string(tx.Type),
			string(tx.Status),
			customerName(tx),
			FormatAmount(tx.Total()),
			FormatAmount(tx.Payment.Balance),
			details(tx),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type actionMsg struct {
	status   string
	err      error
	undo     *transaction.Undo
	restored bool
}

func (m ListModel) saveCmd() tea.Cmd {
	tx, ok := m.selected()
	if !ok {
		return nil
	}

	desc := m.fields.desc

	return func() tea.Msg {
		ctx, cancel := StoreCtx()
		defer cancel()

		err := m.session.Update(ctx, m.tenantID, tx.ID, transaction.Update{Description: &desc})

		return actionMsg{status: "Saved.", err: err}
	}
}

func (m ListModel) settleCmd() tea.Cmd {
	tx, ok := m.selected()
	if !ok {
		return nil
	}

	method := m.fields.method

	return func() tea.Msg {
		ctx, cancel := StoreCtx()
		defer cancel()

		settled, err := m.checkout.Settle(ctx, m.tenantID, tx.ID, method)
		if err != nil && settled.ID == "" {
			return actionMsg{err: err}
		}

		return actionMsg{status: fmt.Sprintf("Settled %s by %s.", customerName(settled), method), err: err}
	}
}

func (m ListModel) deleteCmd() tea.Cmd {
	tx, ok := m.selected()
	if !ok {
		return nil
	}

	return func() tea.Msg {
		ctx, cancel := StoreCtx()
		defer cancel()

		undo, err := m.session.Delete(ctx, m.tenantID, tx.ID)
		if err != nil {
			return actionMsg{err: err}
		}

		return actionMsg{status: "Deleted. Press u to undo.", undo: &undo}
	}
}

func (m ListModel) restoreCmd() tea.Cmd {
	if m.undo == nil {
		return nil
	}

	undo := *m.undo

	return func() tea.Msg {
		ctx, cancel := StoreCtx()
		defer cancel()

		if _, err := m.session.Restore(ctx, m.tenantID, undo); err != nil {
			return actionMsg{err: err}
		}

		return actionMsg{status: "Restored.", restored: true}
	}
}
