package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/pools"
	"github.com/roach88/roulette/internal/session"
)

type handler struct {
	svc    Service
	health func(ctx context.Context) error
	logger *slog.Logger
}

type drawRequest struct {
	UserID string `json:"user_id"`
}

type partyRequest struct {
	UserIDs []string `json:"user_ids"`
}

// drawResponse is a DrawResult plus a human-readable message on failure.
type drawResponse struct {
	model.DrawResult
	Message string `json:"message,omitempty"`
}

type poolResponse struct {
	Pool        model.Pool `json:"pool"`
	ContentHash string     `json:"content_hash"`
	Changed     *bool      `json:"changed,omitempty"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]pools.Info{"pools": h.svc.Pools()})
}

func (h *handler) getPool(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Pool(chi.URLParam(r, "poolID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{Pool: snap.Pool(), ContentHash: snap.ContentHash()})
}

func (h *handler) putPool(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	var p model.Pool
	if err := decodeJSON(r, &p); err != nil {
		badRequest(w, "%v", err)
		return
	}
	switch p.ID {
	case "":
		p.ID = poolID
	case poolID:
	default:
		badRequest(w, "pool id %q does not match path %q", p.ID, poolID)
		return
	}

	snap, changed, err := h.svc.PoolUpdated(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	if changed {
		h.logger.Info("pool updated over http", "pool", snap.ID(), "version", snap.Version())
	}
	writeJSON(w, http.StatusOK, poolResponse{Pool: snap.Pool(), ContentHash: snap.ContentHash(), Changed: &changed})
}

func (h *handler) draw(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	var req drawRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	res, err := h.svc.Draw(r.Context(), poolID, req.UserID)
	if err != nil {
		if res.Err == "" {
			writeErr(w, err)
			return
		}
		writeJSON(w, statusFor(res.Err), drawResponse{DrawResult: res, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, drawResponse{DrawResult: res})
}

func (h *handler) drawParty(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if len(req.UserIDs) == 0 {
		badRequest(w, "user_ids is required")
		return
	}

	records, err := h.svc.DrawMany(r.Context(), chi.URLParam(r, "poolID"), req.UserIDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.DrawRecord{"records": records})
}

func (h *handler) restrict(w http.ResponseWriter, r *http.Request) {
	var req model.Restriction
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}

	snap, changed, err := h.svc.Restrict(r.Context(), chi.URLParam(r, "poolID"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	if changed {
		h.logger.Info("pool restricted over http", "pool", snap.ID(), "version", snap.Version())
	}
	writeJSON(w, http.StatusOK, poolResponse{Pool: snap.Pool(), ContentHash: snap.ContentHash(), Changed: &changed})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	limit := session.DefaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer, got %q", s)
			return
		}
		limit = n
	}

	records, err := h.svc.History(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.DrawRecord{"records": records})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := model.ParseInstant(q.Get("since"))
	if err != nil {
		badRequest(w, "since: %v", err)
		return
	}
	until, err := model.ParseInstant(q.Get("until"))
	if err != nil {
		badRequest(w, "until: %v", err)
		return
	}

	stats, err := h.svc.Stats(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "userID"), since, until)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
