package transaction

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/till/internal/checkout"
	"github.com/MrJamesThe3rd/till/internal/http/auth"
	"github.com/MrJamesThe3rd/till/internal/http/respond"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

type Handler struct {
	svc      *transaction.Service
	checkout *checkout.Service
	now      func() time.Time
}

func NewHandler(svc *transaction.Service, checkout *checkout.Service) *Handler {
	return &Handler{svc: svc, checkout: checkout, now: time.Now}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/stream", h.stream)
	r.Delete("/", h.purge)
	r.Post("/restore", h.restore)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/settle", h.settle)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.checkout.Record(r.Context(), auth.TenantID(r.Context()), req.model())
	if err != nil && id == "" {
		respond.Error(w, err)
		return
	}

	if err != nil {
		// The transaction is saved; only the customer aggregate lagged.
		slog.Warn("transaction recorded without visit", "id", id, "error", err)
	}

	respond.JSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	win, _, err := respond.Window(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txs, err := h.svc.QueryRange(r.Context(), auth.TenantID(r.Context()), win.Start, win.End)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(txs))
}

// stream sends the live window as server-sent events, one full snapshot
// per event, until the client goes away.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	win, _, err := respond.Window(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type snapshot struct {
		txs []transaction.Transaction
		err error
	}

	updates := make(chan snapshot, 1)

	session := h.svc.Session(transaction.WithListener(func(txs []transaction.Transaction, err error) {
		// Only the newest snapshot matters to a slow client.
		select {
		case <-updates:
		default:
		}

		updates <- snapshot{txs: txs, err: err}
	}))

	if err := session.Subscribe(r.Context(), auth.TenantID(r.Context()), win); err != nil {
		respond.Error(w, err)
		return
	}
	defer session.Unsubscribe()

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		slog.Error("failed to flush stream", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-updates:
			event, body := "snapshot", any(toResponseList(s.txs))
			if s.err != nil {
				event, body = "error", map[string]string{"error": s.err.Error()}
			}

			data, err := json.Marshal(body)
			if err != nil {
				slog.Error("failed to encode snapshot", "error", err)
				return
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}

			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.Get(r.Context(), auth.TenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tenantID := auth.TenantID(ctx)
	id := chi.URLParam(r, "id")

	if err := h.svc.Update(ctx, tenantID, id, req.model()); err != nil {
		respond.Error(w, err)
		return
	}

	tx, err := h.svc.Get(ctx, tenantID, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Method == "" {
		http.Error(w, "method is required", http.StatusBadRequest)
		return
	}

	tx, err := h.checkout.Settle(r.Context(), auth.TenantID(r.Context()), chi.URLParam(r, "id"), req.Method)
	if err != nil && tx.ID == "" {
		respond.Error(w, err)
		return
	}

	if err != nil {
		slog.Warn("transaction settled without visit", "id", tx.ID, "error", err)
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	undo, err := h.svc.Delete(r.Context(), auth.TenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toUndo(undo))
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	var req undoDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.svc.Restore(r.Context(), auth.TenantID(r.Context()), req.model())
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, idResponse{ID: id})
}

// purge deletes the transactions of a date range, or all of them when
// all=true is passed instead of a range.
func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	win, ranged, err := respond.Window(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	var res transaction.PurgeResult

	switch {
	case ranged:
		res, err = h.svc.DeleteByDateRange(ctx, tenantID, win.Start, win.End)
	case r.URL.Query().Get("all") == "true":
		res, err = h.svc.ClearAll(ctx, tenantID)
	default:
		http.Error(w, "pass start and end, or all=true", http.StatusBadRequest)
		return
	}

	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, purgeResponse{Deleted: res.Deleted, Message: res.String()})
}
