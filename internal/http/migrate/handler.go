package migrate

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/till/internal/http/auth"
	"github.com/MrJamesThe3rd/till/internal/http/respond"
	"github.com/MrJamesThe3rd/till/internal/migrate"
)

type Handler struct {
	migrator *migrate.Migrator
}

func NewHandler(migrator *migrate.Migrator) *Handler {
	return &Handler{migrator: migrator}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.run)
}

type migrateResponse struct {
	Moved   int    `json:"moved"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	res := h.migrator.Migrate(r.Context(), auth.TenantID(r.Context()))

	resp := migrateResponse{Moved: res.Moved, Message: res.String()}
	if res.OK() {
		respond.JSON(w, http.StatusOK, resp)
		return
	}

	resp.Error = res.Err.Error()
	respond.JSON(w, respond.Status(res.Err), resp)
}
