package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/solplace/indexer/config"
	"github.com/solplace/indexer/pkg/geocode"
	"github.com/solplace/indexer/pkg/ingest"
	"github.com/solplace/indexer/pkg/server"
	"github.com/solplace/indexer/pkg/store"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDBPath      = "place-indexer.db"
	defaultListenAddr  = ":8080"
	defaultMetricsAddr = ":2112"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	showVersionFlag := flag.Bool("version", false, "show version and exit")
	verboseFlag := flag.Bool("verbose", false, "verbose mode - show debug logs")
	envFlag := flag.String("env", config.EnvMainnetBeta, "canvas environment to use")
	dbPathFlag := flag.String("db-path", defaultDBPath, "path to the SQLite database file")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "address to listen on for the read API")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address to listen on for prometheus metrics")
	geocodeBaseURLFlag := flag.String("geocode-base-url", "", "override the reverse-geocoding service base URL")

	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		os.Exit(0)
	}

	log := newLogger(*verboseFlag)
	clock := clockwork.NewRealClock()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Set up prometheus metrics server if enabled.
	if *metricsAddrFlag != "" {
		ingest.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	networkConfig, err := config.NetworkConfigForEnv(*envFlag)
	if err != nil {
		return fmt.Errorf("failed to get network config: %w", err)
	}

	st, err := store.New(store.Config{Logger: log, Path: *dbPathFlag})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	geocodeClient, err := geocode.NewClient(geocode.ClientConfig{
		Logger:     log,
		Clock:      clock,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    *geocodeBaseURLFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create geocode client: %w", err)
	}
	resolver, err := geocode.NewResolver(geocode.ResolverConfig{
		Logger: log,
		Clock:  clock,
		Store:  st,
		Lookup: geocodeClient,
	})
	if err != nil {
		return fmt.Errorf("failed to create geocode resolver: %w", err)
	}
	resolver.Start(ctx)

	sources := []struct {
		name   string
		rpcURL string
		wsURL  string
	}{
		{config.SourceBase, networkConfig.BaseRPCURL, networkConfig.BaseWSURL},
		{config.SourceEphemeral, networkConfig.EphemeralRPCURL, networkConfig.EphemeralWSURL},
	}
	for _, src := range sources {
		if err := startSource(ctx, log, clock, st, resolver, src.name, src.rpcURL, src.wsURL, networkConfig.CanvasProgramID); err != nil {
			return fmt.Errorf("failed to start %s source: %w", src.name, err)
		}
	}

	srv, err := server.New(server.Config{Logger: log, Store: st})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	listener, err := net.Listen("tcp", *listenAddrFlag)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	defer listener.Close()

	if err := srv.Serve(ctx, listener); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("context done, stopping")
	return nil
}

// startSource wires one event source: live subscription plus a one-shot
// historical backfill sharing the same applier.
func startSource(ctx context.Context, log *slog.Logger, clock clockwork.Clock, st *store.Store, resolver *geocode.Resolver, name, rpcURL, wsURL string, programID solana.PublicKey) error {
	applier, err := ingest.NewApplier(ingest.ApplierConfig{
		Logger:   log,
		Source:   name,
		Store:    st,
		Enricher: resolver,
	})
	if err != nil {
		return fmt.Errorf("failed to create applier: %w", err)
	}

	wsClient, err := ws.Connect(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket %s: %w", wsURL, err)
	}
	stream := ingest.NewWSLogStream(wsClient, programID, solanarpc.CommitmentConfirmed)

	subscriber, err := ingest.NewSubscriber(ingest.SubscriberConfig{
		Logger:  log,
		Source:  name,
		Stream:  stream,
		Applier: applier,
	})
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	subscriber.Start(ctx)

	rpcClient := solanarpc.New(rpcURL)
	backfill, err := ingest.NewBackfill(ingest.BackfillConfig{
		Logger:    log,
		Clock:     clock,
		Source:    name,
		RPC:       rpcClient,
		Store:     st,
		Applier:   applier,
		ProgramID: programID,
	})
	if err != nil {
		return fmt.Errorf("failed to create backfill: %w", err)
	}
	go func() {
		if err := backfill.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("backfill run failed", "source", name, "error", err)
		}
	}()
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
