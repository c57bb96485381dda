package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/solplace/indexer/pkg/store"
)

const (
	HealthzPath      = "/healthz"
	StatsPath        = "/api/stats"
	RecentPixelsPath = "/api/pixels/recent"
	ShardsPath       = "/api/shards"
	UsersPathPrefix  = "/api/users/"
)

// ReadStore is the read half of the materialized view the API serves.
type ReadStore interface {
	Stats(ctx context.Context) (store.GlobalStats, error)
	RecentPixelEvents(ctx context.Context, limit int) ([]store.PixelEvent, error)
	PixelEventsAt(ctx context.Context, px, py uint16, limit int) ([]store.PixelEvent, error)
	ShardAt(ctx context.Context, shardX, shardY int32) (*store.Shard, error)
	ShardsByOwner(ctx context.Context, mainWallet string) ([]store.Shard, error)
	UserByWallet(ctx context.Context, mainWallet string) (*store.User, error)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type Handler struct {
	log   *slog.Logger
	store ReadStore
}

func NewHandler(log *slog.Logger, st ReadStore) (*Handler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	return &Handler{log: log, store: st}, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(HealthzPath, h.healthzHandler)
	mux.HandleFunc(StatsPath, h.statsHandler)
	mux.HandleFunc(RecentPixelsPath, h.recentPixelsHandler)
	mux.HandleFunc(ShardsPath, h.shardsHandler)
	mux.HandleFunc(UsersPathPrefix, h.userHandler)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg, Code: status})
}

func (h *Handler) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (h *Handler) healthzHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) statsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireGet(w, r) {
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.log.Error("server: failed to load stats", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// recentPixelsHandler serves the recent pixel feed. With both x and y query
// parameters it narrows to the history of one pixel.
func (h *Handler) recentPixelsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireGet(w, r) {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var evs []store.PixelEvent
	xRaw, yRaw := r.URL.Query().Get("x"), r.URL.Query().Get("y")
	if xRaw != "" || yRaw != "" {
		px, err := parseCoord(xRaw, "x")
		if err != nil {
			h.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		py, err := parseCoord(yRaw, "y")
		if err != nil {
			h.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		evs, err = h.store.PixelEventsAt(r.Context(), px, py, limit)
		if err != nil {
			h.log.Error("server: failed to load pixel history", "error", err)
			h.writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
	} else {
		evs, err = h.store.RecentPixelEvents(r.Context(), limit)
		if err != nil {
			h.log.Error("server: failed to load recent pixels", "error", err)
			h.writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	if evs == nil {
		evs = []store.PixelEvent{}
	}
	h.writeJSON(w, http.StatusOK, evs)
}

// shardsHandler serves one shard by coordinates (x and y) or all shards of
// an owner (owner).
func (h *Handler) shardsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireGet(w, r) {
		return
	}
	q := r.URL.Query()

	if owner := q.Get("owner"); owner != "" {
		shards, err := h.store.ShardsByOwner(r.Context(), owner)
		if err != nil {
			h.log.Error("server: failed to load shards by owner", "error", err)
			h.writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if shards == nil {
			shards = []store.Shard{}
		}
		h.writeJSON(w, http.StatusOK, shards)
		return
	}

	x, err := strconv.ParseInt(q.Get("x"), 10, 32)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid x parameter")
		return
	}
	y, err := strconv.ParseInt(q.Get("y"), 10, 32)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid y parameter")
		return
	}
	shard, err := h.store.ShardAt(r.Context(), int32(x), int32(y))
	if err != nil {
		h.log.Error("server: failed to load shard", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if shard == nil {
		h.writeJSONError(w, http.StatusNotFound, "shard not found")
		return
	}
	h.writeJSON(w, http.StatusOK, shard)
}

func (h *Handler) userHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireGet(w, r) {
		return
	}
	wallet := strings.TrimPrefix(r.URL.Path, UsersPathPrefix)
	if wallet == "" || strings.Contains(wallet, "/") {
		h.writeJSONError(w, http.StatusBadRequest, "invalid wallet path")
		return
	}
	user, err := h.store.UserByWallet(r.Context(), wallet)
	if err != nil {
		h.log.Error("server: failed to load user", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		h.writeJSONError(w, http.StatusNotFound, "user not found")
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("invalid limit parameter")
	}
	return min(limit, maxListLimit), nil
}

func parseCoord(raw, name string) (uint16, error) {
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return uint16(v), nil
}
