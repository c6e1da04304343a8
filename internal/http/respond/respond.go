// Package respond writes JSON bodies and maps domain errors to statuses.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, transaction.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transaction.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, syncerr.ErrBusy):
		return http.StatusConflict
	}

	var se *syncerr.Error
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}

	switch se.Kind {
	case syncerr.KindConfiguration:
		return http.StatusBadRequest
	case syncerr.KindAccessDenied:
		return http.StatusForbidden
	case syncerr.KindIndexMissing, syncerr.KindUnavailable, syncerr.KindTransientWrite:
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func Error(w http.ResponseWriter, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}

	JSON(w, status, map[string]string{"error": err.Error()})
}

// Window reads start and end (YYYY-MM-DD) from the query. Without either it
// returns the month of now and ranged=false.
func Window(r *http.Request, now time.Time) (w transaction.Window, ranged bool, err error) {
	q := r.URL.Query()

	if q.Get("start") == "" && q.Get("end") == "" {
		return transaction.CurrentMonth(now), false, nil
	}

	start, err := time.Parse(time.DateOnly, q.Get("start"))
	if err != nil {
		return transaction.Window{}, false, fmt.Errorf("invalid start: %w", err)
	}

	end, err := time.Parse(time.DateOnly, q.Get("end"))
	if err != nil {
		return transaction.Window{}, false, fmt.Errorf("invalid end: %w", err)
	}

	if end.Before(start) {
		return transaction.Window{}, false, fmt.Errorf("end %s is before start %s", q.Get("end"), q.Get("start"))
	}

	return transaction.NewWindow(start, end), true, nil
}
