package view

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/MrJamesThe3rd/till/internal/customer"
)

// CustomersModel looks a customer up by phone.
type CustomersModel struct {
	CommonModel
	caches   *customer.Caches
	tenantID string

	form    *huh.Form
	phone   *string
	result  string
	looking bool
}

func NewCustomersModel(caches *customer.Caches, tenantID string) CustomersModel {
	m := CustomersModel{caches: caches, tenantID: tenantID, phone: new(string)}
	m.form = m.buildForm()

	return m
}

func (m CustomersModel) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Phone").
				Placeholder("10 digits").
				CharLimit(customer.PhoneLength).
				Value(m.phone).
				Validate(func(s string) error {
					if len(s) != customer.PhoneLength {
						return fmt.Errorf("phone must be %d digits", customer.PhoneLength)
					}

					return nil
				}),
		),
	).WithWidth(40).WithShowHelp(false)
}

func (m CustomersModel) Title() string { return "Customers" }

func (m CustomersModel) ShortHelp() string { return "Esc: back | Enter: look up" }

func (m CustomersModel) Init() tea.Cmd {
	return m.form.Init()
}

type lookupMsg struct {
	text string
}

func (m CustomersModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m, Back
		}
	case lookupMsg:
		m.result = msg.text
		m.looking = false
		*m.phone = ""
		m.form = m.buildForm()

		return m, m.form.Init()
	}

	if m.looking {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.looking = true

	return m, m.lookupCmd(*m.phone)
}

func (m CustomersModel) lookupCmd(phone string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := StoreCtx()
		defer cancel()

		cache, err := m.caches.Get(ctx, m.tenantID)
		if err != nil {
			return lookupMsg{text: errorStyle.Render(fmt.Sprintf("Error: %v", err))}
		}

		c, ok := cache.Lookup(phone)
		if !ok {
			return lookupMsg{text: faintStyle.Render("No customer with phone " + phone)}
		}

		text := fmt.Sprintf("%s (%s)\nVisits: %d\nTotal spent: %s\nLast visit: %s",
			accentStyle.Render(c.Name), c.Phone, c.VisitCount, FormatAmount(c.TotalSpent), FormatDate(c.LastVisit))
		if c.LastNote != "" {
			text += "\nNote: " + c.LastNote
		}

		return lookupMsg{text: text}
	}
}

func (m CustomersModel) View() string {
	out := m.form.View()
	if m.result != "" {
		out += "\n\n" + m.result
	}

	return paddedStyle.Render(out)
}
