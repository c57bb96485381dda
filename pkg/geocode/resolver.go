package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/solplace/indexer/pkg/store"
)

const (
	defaultRetryBaseDelay     = 10 * time.Second
	defaultRetryInterval      = 10 * time.Second
	defaultMaxAttempts        = 5
	defaultRepairInterval     = 60 * time.Second
	defaultRepairInitialDelay = 30 * time.Second
	defaultRepairBatchSize    = 10
	defaultQueueSize          = 1024
)

// Store is the slice of the materialized view the resolver touches: identity
// reads and single-field location writes, nothing else.
type Store interface {
	SetPixelLocation(ctx context.Context, id int64, name string) error
	SetShardLocation(ctx context.Context, shardX, shardY int32, name string) error
	UnresolvedTargets(ctx context.Context, limit int) ([]store.EnrichTarget, error)
}

type Lookup interface {
	LookupPlaceName(ctx context.Context, lat, lon float64) (string, error)
}

type ResolverConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  Store
	Lookup Lookup

	RetryBaseDelay     time.Duration
	RetryInterval      time.Duration
	MaxAttempts        int
	RepairInterval     time.Duration
	RepairInitialDelay time.Duration
	RepairBatchSize    int
	QueueSize          int
}

func (cfg *ResolverConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Lookup == nil {
		return errors.New("lookup is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RepairInterval <= 0 {
		cfg.RepairInterval = defaultRepairInterval
	}
	if cfg.RepairInitialDelay <= 0 {
		cfg.RepairInitialDelay = defaultRepairInitialDelay
	}
	if cfg.RepairBatchSize <= 0 {
		cfg.RepairBatchSize = defaultRepairBatchSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return nil
}

// pendingGeocode is one entry of the in-memory retry queue. Entries are
// keyed by target identity; they are never persisted, the repair scan
// rediscovers anything lost to a restart.
type pendingGeocode struct {
	target      store.EnrichTarget
	retryCount  int
	nextRetryAt time.Time
}

// Resolver runs the asynchronous enrichment pipeline: immediate attempts on
// newly applied rows, a bounded-backoff retry queue, and a periodic repair
// scan over rows that are still unresolved. Nothing in here ever blocks or
// fails primary ingestion.
type Resolver struct {
	log    *slog.Logger
	cfg    ResolverConfig
	clock  clockwork.Clock
	store  Store
	lookup Lookup

	incoming chan store.EnrichTarget

	mu      sync.Mutex
	pending map[string]*pendingGeocode
}

func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Resolver{
		log:      cfg.Logger,
		cfg:      cfg,
		clock:    cfg.Clock,
		store:    cfg.Store,
		lookup:   cfg.Lookup,
		incoming: make(chan store.EnrichTarget, cfg.QueueSize),
		pending:  make(map[string]*pendingGeocode),
	}, nil
}

// Enqueue hands a newly created row to the pipeline. It never blocks: when
// the queue is full the target is dropped and left for the repair scan.
func (r *Resolver) Enqueue(target store.EnrichTarget) {
	select {
	case r.incoming <- target:
	default:
		r.log.Warn("geocode: queue full, dropping target for repair scan", "target", target.Key())
	}
}

// Start launches the immediate-attempt worker, the retry ticker, and the
// repair scan ticker. All three stop when ctx is cancelled.
func (r *Resolver) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case target := <-r.incoming:
				r.attempt(ctx, target)
			}
		}
	}()

	go func() {
		ticker := r.clock.NewTicker(r.cfg.RetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.processDue(ctx)
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.cfg.RepairInitialDelay):
		}
		ticker := r.clock.NewTicker(r.cfg.RepairInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.repairScan(ctx)
			}
		}
	}()
}

// attempt performs the immediate lookup for a freshly applied row. On
// failure the target joins the retry queue with the base delay.
func (r *Resolver) attempt(ctx context.Context, target store.EnrichTarget) {
	name, err := r.resolve(ctx, target)
	if err != nil {
		r.log.Debug("geocode: immediate lookup failed, queueing retry", "target", target.Key(), "error", err)
		r.addPending(target)
		return
	}
	if err := r.writeName(ctx, target, name); err != nil {
		r.log.Warn("geocode: failed to store place name, queueing retry", "target", target.Key(), "error", err)
		r.addPending(target)
	}
}

func (r *Resolver) addPending(target store.EnrichTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[target.Key()]; ok {
		return
	}
	r.pending[target.Key()] = &pendingGeocode{
		target:      target,
		nextRetryAt: r.clock.Now().Add(r.cfg.RetryBaseDelay),
	}
	RetryQueueDepth.Set(float64(len(r.pending)))
}

// processDue re-attempts every queue entry whose retry time has passed.
// Failures double the delay from the base; after MaxAttempts the row gets
// the permanent-failure sentinel and the entry is dropped for good.
func (r *Resolver) processDue(ctx context.Context) {
	now := r.clock.Now()

	r.mu.Lock()
	due := make([]*pendingGeocode, 0, len(r.pending))
	for _, entry := range r.pending {
		if !entry.nextRetryAt.After(now) {
			due = append(due, entry)
		}
	}
	r.mu.Unlock()

	for _, entry := range due {
		name, err := r.resolve(ctx, entry.target)
		if err == nil {
			err = r.writeName(ctx, entry.target, name)
		}
		if err == nil {
			r.removePending(entry.target)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		r.mu.Lock()
		entry.retryCount++
		if entry.retryCount >= r.cfg.MaxAttempts {
			delete(r.pending, entry.target.Key())
			RetryQueueDepth.Set(float64(len(r.pending)))
			r.mu.Unlock()

			AbandonedTotal.Inc()
			r.log.Warn("geocode: giving up on target after retries",
				"target", entry.target.Key(), "attempts", entry.retryCount, "error", err)
			if werr := r.writeName(ctx, entry.target, store.LocationUnknown); werr != nil {
				r.log.Warn("geocode: failed to write sentinel", "target", entry.target.Key(), "error", werr)
			}
			continue
		}
		entry.nextRetryAt = r.clock.Now().Add(r.cfg.RetryBaseDelay << entry.retryCount)
		r.mu.Unlock()
	}
}

// repairScan re-attempts a bounded batch of unresolved rows straight from
// the store, recovering targets that were dropped after exhausting retries
// or never enqueued because of a restart.
func (r *Resolver) repairScan(ctx context.Context) {
	RepairScansTotal.Inc()
	targets, err := r.store.UnresolvedTargets(ctx, r.cfg.RepairBatchSize)
	if err != nil {
		r.log.Warn("geocode: repair scan query failed", "error", err)
		return
	}
	if len(targets) == 0 {
		return
	}
	r.log.Debug("geocode: repair scan found unresolved rows", "count", len(targets))

	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}
		if r.isPending(target) {
			continue
		}
		name, err := r.resolve(ctx, target)
		if err != nil {
			r.log.Debug("geocode: repair lookup failed", "target", target.Key(), "error", err)
			continue
		}
		if err := r.writeName(ctx, target, name); err != nil {
			r.log.Warn("geocode: failed to store repaired place name", "target", target.Key(), "error", err)
		}
	}
}

func (r *Resolver) resolve(ctx context.Context, target store.EnrichTarget) (string, error) {
	var lat, lon float64
	switch target.Kind {
	case store.TargetPixel:
		lat, lon = PixelLatLon(target.PX, target.PY)
	case store.TargetShard:
		lat, lon = ShardLatLon(target.ShardX, target.ShardY)
	default:
		return "", fmt.Errorf("unknown target kind %q", target.Kind)
	}

	name, err := r.lookup.LookupPlaceName(ctx, lat, lon)
	if err != nil {
		LookupsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	LookupsTotal.WithLabelValues("success").Inc()
	return name, nil
}

func (r *Resolver) writeName(ctx context.Context, target store.EnrichTarget, name string) error {
	if target.Kind == store.TargetPixel {
		return r.store.SetPixelLocation(ctx, target.PixelID, name)
	}
	return r.store.SetShardLocation(ctx, target.ShardX, target.ShardY, name)
}

func (r *Resolver) removePending(target store.EnrichTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, target.Key())
	RetryQueueDepth.Set(float64(len(r.pending)))
}

func (r *Resolver) isPending(target store.EnrichTarget) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[target.Key()]
	return ok
}
