package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/till/internal/export"
	"github.com/MrJamesThe3rd/till/internal/http/auth"
	"github.com/MrJamesThe3rd/till/internal/http/respond"
)

type Handler struct {
	svc *export.Service
	now func() time.Time
}

func NewHandler(svc *export.Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.download)
	r.Get("/summary", h.summary)
}

// download sends the range as a CSV attachment. The body is buffered so a
// failed query still gets a proper error status.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	win, _, err := respond.Window(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer

	if _, err := h.svc.Export(r.Context(), auth.TenantID(r.Context()), win.Start, win.End, &buf); err != nil {
		respond.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"transactions_%s_%s.csv\"",
			win.Start.Format("20060102"), win.End.Format("20060102")))

	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write export", "error", err)
	}
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	win, _, err := respond.Window(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var discard bytes.Buffer

	sum, err := h.svc.Export(r.Context(), auth.TenantID(r.Context()), win.Start, win.End, &discard)
	if err != nil {
		respond.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if _, err := fmt.Fprint(w, h.svc.Format(sum)); err != nil {
		slog.Error("failed to write summary", "error", err)
	}
}
