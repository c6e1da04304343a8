package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/till/internal/http/auth"
	"github.com/MrJamesThe3rd/till/internal/http/customer"
	"github.com/MrJamesThe3rd/till/internal/http/export"
	"github.com/MrJamesThe3rd/till/internal/http/migrate"
	"github.com/MrJamesThe3rd/till/internal/http/transaction"
)

type Options struct {
	JWTSecret   []byte
	CORSOrigins []string
}

func New(
	opts Options,
	transactionsV1 *transaction.Handler,
	customersV1 *customer.Handler,
	migrateV1 *migrate.Handler,
	exportV1 *export.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", auth.TenantHeader},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret))

		r.Route("/transactions", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			transactionsV1.Routes(r)
		})

		r.Route("/customers", customersV1.Routes)
		r.Route("/migrate", migrateV1.Routes)
		r.Route("/export", exportV1.Routes)
	})

	return router
}
