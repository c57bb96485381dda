package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solplace/indexer/pkg/store"
)

type mockReadStore struct {
	StatsFunc             func(ctx context.Context) (store.GlobalStats, error)
	RecentPixelEventsFunc func(ctx context.Context, limit int) ([]store.PixelEvent, error)
	PixelEventsAtFunc     func(ctx context.Context, px, py uint16, limit int) ([]store.PixelEvent, error)
	ShardAtFunc           func(ctx context.Context, shardX, shardY int32) (*store.Shard, error)
	ShardsByOwnerFunc     func(ctx context.Context, mainWallet string) ([]store.Shard, error)
	UserByWalletFunc      func(ctx context.Context, mainWallet string) (*store.User, error)
}

func (m *mockReadStore) Stats(ctx context.Context) (store.GlobalStats, error) {
	return m.StatsFunc(ctx)
}

func (m *mockReadStore) RecentPixelEvents(ctx context.Context, limit int) ([]store.PixelEvent, error) {
	return m.RecentPixelEventsFunc(ctx, limit)
}

func (m *mockReadStore) PixelEventsAt(ctx context.Context, px, py uint16, limit int) ([]store.PixelEvent, error) {
	return m.PixelEventsAtFunc(ctx, px, py, limit)
}

func (m *mockReadStore) ShardAt(ctx context.Context, shardX, shardY int32) (*store.Shard, error) {
	return m.ShardAtFunc(ctx, shardX, shardY)
}

func (m *mockReadStore) ShardsByOwner(ctx context.Context, mainWallet string) ([]store.Shard, error) {
	return m.ShardsByOwnerFunc(ctx, mainWallet)
}

func (m *mockReadStore) UserByWallet(ctx context.Context, mainWallet string) (*store.User, error) {
	return m.UserByWalletFunc(ctx, mainWallet)
}

func newTestHandler(t *testing.T, st ReadStore) http.Handler {
	t.Helper()
	h, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), st)
	require.NoError(t, err)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Handler_Healthz(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockReadStore{})
	rec := doGet(t, h, HealthzPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Handler_Stats(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockReadStore{
		StatsFunc: func(ctx context.Context) (store.GlobalStats, error) {
			return store.GlobalStats{TotalPixelsPlaced: 42, TotalShardsDeployed: 3}, nil
		},
	})
	rec := doGet(t, h, StatsPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_pixels_placed":42,"total_shards_deployed":3}`, rec.Body.String())
}

func TestServer_Handler_StatsError(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockReadStore{
		StatsFunc: func(ctx context.Context) (store.GlobalStats, error) {
			return store.GlobalStats{}, errors.New("database gone")
		},
	})
	rec := doGet(t, h, StatsPath)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Handler_RecentPixels(t *testing.T) {
	t.Parallel()

	var gotLimit int
	h := newTestHandler(t, &mockReadStore{
		RecentPixelEventsFunc: func(ctx context.Context, limit int) ([]store.PixelEvent, error) {
			gotLimit = limit
			return []store.PixelEvent{{ID: 1, PX: 10, PY: 20, Color: 0xFF0000, MainWallet: "wallet1"}}, nil
		},
	})

	rec := doGet(t, h, RecentPixelsPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultListLimit, gotLimit)

	var evs []store.PixelEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, uint16(10), evs[0].PX)
}

func TestServer_Handler_RecentPixelsLimitClamped(t *testing.T) {
	t.Parallel()

	var gotLimit int
	h := newTestHandler(t, &mockReadStore{
		RecentPixelEventsFunc: func(ctx context.Context, limit int) ([]store.PixelEvent, error) {
			gotLimit = limit
			return nil, nil
		},
	})

	rec := doGet(t, h, RecentPixelsPath+"?limit=9999")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, gotLimit)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doGet(t, h, RecentPixelsPath+"?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Handler_PixelHistoryAtCoords(t *testing.T) {
	t.Parallel()

	var gotPX, gotPY uint16
	h := newTestHandler(t, &mockReadStore{
		PixelEventsAtFunc: func(ctx context.Context, px, py uint16, limit int) ([]store.PixelEvent, error) {
			gotPX, gotPY = px, py
			return nil, nil
		},
	})

	rec := doGet(t, h, RecentPixelsPath+"?x=100&y=200")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint16(100), gotPX)
	assert.Equal(t, uint16(200), gotPY)

	rec = doGet(t, h, RecentPixelsPath+"?x=100")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Handler_ShardByCoords(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockReadStore{
		ShardAtFunc: func(ctx context.Context, shardX, shardY int32) (*store.Shard, error) {
			if shardX == 3 && shardY == -2 {
				return &store.Shard{ShardX: 3, ShardY: -2, MainWallet: "wallet1"}, nil
			}
			return nil, nil
		},
	})

	rec := doGet(t, h, ShardsPath+"?x=3&y=-2")
	require.Equal(t, http.StatusOK, rec.Code)

	var shard store.Shard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shard))
	assert.Equal(t, int32(-2), shard.ShardY)

	rec = doGet(t, h, ShardsPath+"?x=9&y=9")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doGet(t, h, ShardsPath+"?x=abc&y=9")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Handler_ShardsByOwner(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockReadStore{
		ShardsByOwnerFunc: func(ctx context.Context, mainWallet string) ([]store.Shard, error) {
			require.Equal(t, "wallet1", mainWallet)
			return []store.Shard{{ShardX: 0, ShardY: 0, MainWallet: "wallet1"}}, nil
		},
	})

	rec := doGet(t, h, ShardsPath+"?owner=wallet1")
	require.Equal(t, http.StatusOK, rec.Code)

	var shards []store.Shard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shards))
	assert.Len(t, shards, 1)
}

func TestServer_Handler_UserByWallet(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockReadStore{
		UserByWalletFunc: func(ctx context.Context, mainWallet string) (*store.User, error) {
			if mainWallet == "wallet1" {
				return &store.User{MainWallet: "wallet1", PixelsPlaced: 5}, nil
			}
			return nil, nil
		},
	})

	rec := doGet(t, h, UsersPathPrefix+"wallet1")
	require.Equal(t, http.StatusOK, rec.Code)

	var user store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, int64(5), user.PixelsPlaced)

	rec = doGet(t, h, UsersPathPrefix+"nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Handler_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockReadStore{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, StatsPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}
