package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solplace/indexer/pkg/store"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	srv, err := New(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store: &mockReadStore{
			StatsFunc: func(ctx context.Context) (store.GlobalStats, error) {
				return store.GlobalStats{TotalPixelsPlaced: 1}, nil
			},
		},
		ShutdownTimeout: time.Second,
	})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx, listener)
	}()

	base := fmt.Sprintf("http://%s", listener.Addr().String())
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get(base + StatsPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats store.GlobalStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, int64(1), stats.TotalPixelsPlaced)

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Store: &mockReadStore{}})
	require.Error(t, err)

	_, err = New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.Error(t, err)
}
