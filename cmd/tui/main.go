package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/till/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/till/internal/checkout"
	"github.com/MrJamesThe3rd/till/internal/config"
	"github.com/MrJamesThe3rd/till/internal/customer"
	"github.com/MrJamesThe3rd/till/internal/database"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/export"
	"github.com/MrJamesThe3rd/till/internal/logging"
	"github.com/MrJamesThe3rd/till/internal/migrate"
	"github.com/MrJamesThe3rd/till/internal/notify"
	"github.com/MrJamesThe3rd/till/internal/tenant"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

type model struct {
	ctx      context.Context
	tenantID string
	notices  chan notify.Notice

	txService       *transaction.Service
	checkoutService *checkout.Service
	customerCaches  *customer.Caches
	exportService   *export.Service
	migrator        *migrate.Migrator

	active view.View
	notice string
}

func newModel(ctx context.Context, cfg *config.Config, store docstore.Client, tenantID string) model {
	logger := slog.Default()
	resolver := tenant.NewResolver(cfg.Store.TenantRoot)

	notices := make(chan notify.Notice, 16)
	notifier := notify.Func(func(n notify.Notice) {
		select {
		case notices <- n:
		default:
			// The screen only shows the latest notice; the log has them all.
		}
	})

	txSvc := transaction.NewService(store,
		transaction.WithResolver(resolver),
		transaction.WithBatchSize(cfg.Store.BatchSize),
		transaction.WithLegacyReads(cfg.Store.LegacyReads),
		transaction.WithLogger(logger),
		transaction.WithNotifier(notifier),
	)

	caches := customer.NewCaches(store,
		customer.WithResolver(resolver),
		customer.WithBatchSize(cfg.Store.BatchSize),
		customer.WithLegacyReads(cfg.Store.LegacyReads),
		customer.WithLogger(logger),
		customer.WithNotifier(notifier),
	)

	return model{
		ctx:             ctx,
		tenantID:        tenantID,
		notices:         notices,
		txService:       txSvc,
		checkoutService: checkout.NewService(txSvc, caches),
		customerCaches:  caches,
		exportService:   export.NewService(txSvc),
		migrator: migrate.New(store,
			migrate.WithResolver(resolver),
			migrate.WithBatchSize(cfg.Store.BatchSize),
			migrate.WithLogger(logger),
			migrate.WithCached(caches),
		),
	}
}

func (m model) Init() tea.Cmd {
	return view.WaitNotice(m.notices)
}

func (m model) open(v view.View) (tea.Model, tea.Cmd) {
	m.active = v
	m.notice = ""

	return m, v.Init()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case view.NoticeMsg:
		m.notice = view.RenderNotice(msg)
		return m, view.WaitNotice(m.notices)

	case view.BackMsg:
		m.active = nil
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.active == nil {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				return m.open(view.NewListModel(m.ctx, m.txService, m.checkoutService, m.tenantID))
			case "2":
				return m.open(view.NewCustomersModel(m.customerCaches, m.tenantID))
			case "3":
				return m.open(view.NewExportModel(m.exportService, m.tenantID))
			case "4":
				return m.open(view.NewPurgeModel(m.txService, m.tenantID))
			case "5":
				return m.open(view.NewMigrateModel(m.migrator, m.tenantID))
			}
		}
	}

	if m.active == nil {
		return m, nil
	}

	next, cmd := m.active.Update(msg)
	if v, ok := next.(view.View); ok {
		m.active = v
	}

	return m, cmd
}

func (m model) View() string {
	var body string

	if m.active == nil {
		body = lipgloss.NewStyle().Padding(2).Render(
			fmt.Sprintf("Till · %s\n\n", m.tenantID) +
				"1. Live Transactions\n" +
				"2. Customers\n" +
				"3. Export Transactions\n" +
				"4. Delete Transactions\n" +
				"5. Migrate Legacy Data\n\n" +
				"q. Quit",
		)
	} else {
		title := lipgloss.NewStyle().Bold(true).PaddingLeft(1).Render(m.active.Title())
		help := lipgloss.NewStyle().Faint(true).PaddingLeft(1).Render(m.active.ShortHelp())
		body = lipgloss.JoinVertical(lipgloss.Left, title, m.active.View(), help)
	}

	if m.notice != "" {
		body += "\n" + lipgloss.NewStyle().PaddingLeft(1).Render(m.notice)
	}

	return body
}

// askTenant prompts for the business when TENANT_ID is unset.
func askTenant() (string, error) {
	var id string

	err := huh.NewInput().
		Title("Business ID").
		Value(&id).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("business id is required")
			}

			return nil
		}).
		Run()

	return strings.TrimSpace(id), err
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Stderr belongs to the terminal UI.
	slog.SetDefault(logging.NewFile(cfg, "till-tui.log"))

	tenantID := cfg.Console.TenantID
	if tenantID == "" {
		if tenantID, err = askTenant(); err != nil {
			slog.Error("no business selected", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := database.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		fmt.Fprintln(os.Stderr, "failed to open store:", err)
		os.Exit(1)
	}

	m := newModel(ctx, cfg, store, tenantID)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
	}

	cancel()
	m.customerCaches.Flush()

	if err := store.Close(context.Background()); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}
