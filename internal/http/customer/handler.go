package customer

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/till/internal/customer"
	"github.com/MrJamesThe3rd/till/internal/http/auth"
	"github.com/MrJamesThe3rd/till/internal/http/respond"
)

type Handler struct {
	caches *customer.Caches
}

func NewHandler(caches *customer.Caches) *Handler {
	return &Handler{caches: caches}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{phone}", h.get)
	r.Delete("/", h.clear)
}

type customerResponse struct {
	Phone      string          `json:"phone"`
	Name       string          `json:"name"`
	VisitCount int             `json:"visit_count"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	LastVisit  time.Time       `json:"last_visit"`
	LastNote   string          `json:"last_note,omitempty"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	cache, err := h.caches.Get(r.Context(), auth.TenantID(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}

	c, ok := cache.Lookup(chi.URLParam(r, "phone"))
	if !ok {
		http.Error(w, "customer not found", http.StatusNotFound)
		return
	}

	respond.JSON(w, http.StatusOK, customerResponse{
		Phone:      c.Phone,
		Name:       c.Name,
		VisitCount: c.VisitCount,
		TotalSpent: c.TotalSpent,
		LastVisit:  c.LastVisit,
		LastNote:   c.LastNote,
	})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	cache, err := h.caches.Get(ctx, tenantID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	n, err := cache.ClearAll(ctx, tenantID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]int{"deleted": n})
}
