// Package ingest reconciles the two event sources into the materialized
// view: a live log subscriber and a resumable historical backfill per
// source, both funneling parsed events through one idempotent applier.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solplace/indexer/pkg/events"
	"github.com/solplace/indexer/pkg/store"
)

// ProjectionStore is the write half of the materialized view the applier
// drives.
type ProjectionStore interface {
	ApplyTransaction(ctx context.Context, signature string, evs []events.Event, now time.Time) ([]store.EnrichTarget, bool, error)
}

// Enricher receives newly created rows after a successful commit. Enqueue
// must never block; enrichment is strictly best-effort.
type Enricher interface {
	Enqueue(target store.EnrichTarget)
}

type ApplierConfig struct {
	Logger   *slog.Logger
	Source   string
	Store    ProjectionStore
	Enricher Enricher
}

func (cfg *ApplierConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == "" {
		return errors.New("source label is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Enricher == nil {
		return errors.New("enricher is required")
	}
	return nil
}

// Applier projects one transaction's events into the view and, after
// commit, hands the created rows to enrichment. Both the live subscriber
// and the backfill engine of one source share an applier.
type Applier struct {
	log      *slog.Logger
	cfg      ApplierConfig
	store    ProjectionStore
	enricher Enricher
}

func NewApplier(cfg ApplierConfig) (*Applier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Applier{
		log:      cfg.Logger.With("source", cfg.Source),
		cfg:      cfg,
		store:    cfg.Store,
		enricher: cfg.Enricher,
	}, nil
}

// Apply runs the atomic apply-and-mark for one signature. Applying zero
// events is valid and still marks the signature (failed on-chain
// transactions). Duplicate signatures are a cheap no-op.
func (a *Applier) Apply(ctx context.Context, signature solana.Signature, evs []events.Event) error {
	targets, applied, err := a.store.ApplyTransaction(ctx, signature.String(), evs, time.Now())
	if err != nil {
		ApplyErrorsTotal.WithLabelValues(a.cfg.Source).Inc()
		return fmt.Errorf("failed to apply transaction %s: %w", signature, err)
	}
	if !applied {
		TransactionsSkippedTotal.WithLabelValues(a.cfg.Source).Inc()
		a.log.Debug("ingest: transaction already applied", "signature", signature.String())
		return nil
	}

	TransactionsAppliedTotal.WithLabelValues(a.cfg.Source).Inc()
	for _, ev := range evs {
		switch ev.(type) {
		case events.PixelChanged:
			EventsAppliedTotal.WithLabelValues(a.cfg.Source, "pixel_changed").Inc()
		case events.ShardInitialized:
			EventsAppliedTotal.WithLabelValues(a.cfg.Source, "shard_initialized").Inc()
		}
	}
	a.log.Debug("ingest: applied transaction", "signature", signature.String(), "events", len(evs), "enrich_targets", len(targets))

	// Fire-and-forget: enrichment runs outside the transaction and its
	// failures never reach this path.
	for _, target := range targets {
		a.enricher.Enqueue(target)
	}
	return nil
}
