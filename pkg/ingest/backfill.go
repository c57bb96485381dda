package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"

	"github.com/solplace/indexer/pkg/events"
)

const (
	defaultBackfillPageSize       = 100
	defaultBackfillPageDelay      = 500 * time.Millisecond
	defaultBackfillMaxConcurrency = 4
)

var maxSupportedTransactionVersion = uint64(0)

// SyncStore tracks which signatures are already applied and where the
// previous backfill run stopped.
type SyncStore interface {
	HasSignature(ctx context.Context, signature string) (bool, error)
	LastSignature(ctx context.Context, label string) (string, error)
	SetLastSignature(ctx context.Context, label, signature string, now time.Time) error
}

type BackfillConfig struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Source  string
	RPC     RPCClient
	Store   SyncStore
	Applier *Applier

	ProgramID  solana.PublicKey
	Commitment solanarpc.CommitmentType

	// PageSize is the number of signatures requested per RPC page.
	// Optional.
	PageSize int
	// PageDelay is the pause between consecutive pages, to keep the
	// historical walk polite to public RPC endpoints. Optional.
	PageDelay time.Duration
	// MaxConcurrency bounds parallel transaction-detail fetches within a
	// page. Optional.
	MaxConcurrency int
}

func (cfg *BackfillConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == "" {
		return errors.New("source label is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Applier == nil {
		return errors.New("applier is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultBackfillPageSize
	}
	if cfg.PageDelay == 0 {
		cfg.PageDelay = defaultBackfillPageDelay
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultBackfillMaxConcurrency
	}
	return nil
}

// Backfill walks a source's signature history for the canvas program,
// newest page first, and applies every transaction the live subscriber
// missed. Runs are resumable: the newest signature of the first non-empty
// page becomes the watermark, so the next run stops where this one
// started.
type Backfill struct {
	log *slog.Logger
	cfg BackfillConfig
}

func NewBackfill(cfg BackfillConfig) (*Backfill, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Backfill{
		log: cfg.Logger.With("source", cfg.Source),
		cfg: cfg,
	}, nil
}

// Run executes one backfill pass. It returns on the first error so a
// partially processed history is retried from the same watermark, rather
// than advancing past a gap.
func (b *Backfill) Run(ctx context.Context) error {
	until, err := b.untilSignature(ctx)
	if err != nil {
		return err
	}

	var before solana.Signature
	watermarkSet := false
	for {
		page, err := b.fetchPage(ctx, before, until)
		if err != nil {
			return fmt.Errorf("failed to fetch signature page: %w", err)
		}
		if len(page) == 0 {
			b.log.Info("ingest: backfill complete", "watermark_updated", watermarkSet)
			return nil
		}
		BackfillPagesTotal.WithLabelValues(b.cfg.Source).Inc()

		// The newest signature seen this run bounds the next run. Set it
		// before processing: every older signature is either applied below
		// or retried by the run that fails here, never skipped.
		if !watermarkSet {
			newest := page[0].Signature.String()
			if err := b.cfg.Store.SetLastSignature(ctx, b.cfg.Source, newest, time.Now()); err != nil {
				return fmt.Errorf("failed to set backfill watermark: %w", err)
			}
			watermarkSet = true
			b.log.Info("ingest: backfill watermark set", "signature", newest)
		}

		if err := b.processPage(ctx, page); err != nil {
			return err
		}

		before = page[len(page)-1].Signature
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.cfg.Clock.After(b.cfg.PageDelay):
		}
	}
}

func (b *Backfill) untilSignature(ctx context.Context) (solana.Signature, error) {
	last, err := b.cfg.Store.LastSignature(ctx, b.cfg.Source)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to load backfill watermark: %w", err)
	}
	if last == "" {
		return solana.Signature{}, nil
	}
	sig, err := solana.SignatureFromBase58(last)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to parse backfill watermark %q: %w", last, err)
	}
	return sig, nil
}

func (b *Backfill) fetchPage(ctx context.Context, before, until solana.Signature) ([]*solanarpc.TransactionSignature, error) {
	opts := &solanarpc.GetSignaturesForAddressOpts{
		Limit:      &b.cfg.PageSize,
		Commitment: b.cfg.Commitment,
	}
	if !before.IsZero() {
		opts.Before = before
	}
	if !until.IsZero() {
		opts.Until = until
	}
	return b.cfg.RPC.GetSignaturesForAddressWithOpts(ctx, b.cfg.ProgramID, opts)
}

type backfillTx struct {
	signature solana.Signature
	events    []events.Event
	skip      bool
}

// processPage applies one RPC page oldest-first. Transaction details are
// fetched concurrently, but application stays strictly ordered.
func (b *Backfill) processPage(ctx context.Context, page []*solanarpc.TransactionSignature) error {
	pool := pond.NewResultPool[backfillTx](b.cfg.MaxConcurrency)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	// Oldest first, so results come back in apply order.
	for i := len(page) - 1; i >= 0; i-- {
		entry := page[i]
		group.SubmitErr(func() (backfillTx, error) {
			return b.prepare(ctx, entry)
		})
	}

	prepared, err := group.Wait()
	if err != nil {
		return fmt.Errorf("failed to prepare backfill page: %w", err)
	}

	for _, tx := range prepared {
		if tx.skip {
			continue
		}
		if err := b.cfg.Applier.Apply(ctx, tx.signature, tx.events); err != nil {
			return err
		}
	}
	return nil
}

// prepare resolves one signature entry to the events it carries. Already
// applied signatures are skipped without a detail fetch; failed
// transactions are applied with zero events so their signatures are still
// marked.
func (b *Backfill) prepare(ctx context.Context, entry *solanarpc.TransactionSignature) (backfillTx, error) {
	sig := entry.Signature
	seen, err := b.cfg.Store.HasSignature(ctx, sig.String())
	if err != nil {
		return backfillTx{}, fmt.Errorf("failed to check signature %s: %w", sig, err)
	}
	if seen {
		return backfillTx{signature: sig, skip: true}, nil
	}
	if entry.Err != nil {
		return backfillTx{signature: sig}, nil
	}

	res, err := b.cfg.RPC.GetTransaction(ctx, sig, &solanarpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     b.cfg.Commitment,
		MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
	})
	if err != nil {
		return backfillTx{}, fmt.Errorf("failed to fetch transaction %s: %w", sig, err)
	}
	if res == nil || res.Meta == nil || res.Meta.Err != nil {
		return backfillTx{signature: sig}, nil
	}
	return backfillTx{signature: sig, events: events.ParseLogs(res.Meta.LogMessages)}, nil
}
