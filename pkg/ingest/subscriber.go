package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"

	"github.com/solplace/indexer/pkg/events"
)

const defaultResubscribeMaxInterval = 30 * time.Second

type SubscriberConfig struct {
	Logger  *slog.Logger
	Source  string
	Stream  LogStream
	Applier *Applier

	// ResubscribeMaxInterval caps the exponential backoff between
	// reconnection attempts. Optional.
	ResubscribeMaxInterval time.Duration
}

func (cfg *SubscriberConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == "" {
		return errors.New("source label is required")
	}
	if cfg.Stream == nil {
		return errors.New("log stream is required")
	}
	if cfg.Applier == nil {
		return errors.New("applier is required")
	}
	if cfg.ResubscribeMaxInterval == 0 {
		cfg.ResubscribeMaxInterval = defaultResubscribeMaxInterval
	}
	return nil
}

// Subscriber consumes program log notifications from one source and feeds
// them to the applier. It resubscribes with exponential backoff whenever
// the stream drops; gaps between subscriptions are covered by the backfill
// engine, so a lost notification is never a lost event.
type Subscriber struct {
	log *slog.Logger
	cfg SubscriberConfig
}

func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Subscriber{
		log: cfg.Logger.With("source", cfg.Source),
		cfg: cfg,
	}, nil
}

// Start runs the subscribe-consume loop until ctx is canceled.
func (s *Subscriber) Start(ctx context.Context) {
	go func() {
		for {
			sub, err := s.subscribe(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error("ingest: failed to subscribe to program logs", "error", err)
				return
			}
			s.log.Info("ingest: subscribed to program logs")

			err = s.consume(ctx, sub)
			sub.Unsubscribe()
			if ctx.Err() != nil {
				return
			}
			SubscriberResubscribesTotal.WithLabelValues(s.cfg.Source).Inc()
			s.log.Warn("ingest: log subscription dropped, resubscribing", "error", err)
		}
	}()
}

func (s *Subscriber) subscribe(ctx context.Context) (LogSubscription, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = s.cfg.ResubscribeMaxInterval
	return backoff.Retry(ctx, func() (LogSubscription, error) {
		sub, err := s.cfg.Stream.SubscribeProgramLogs(ctx)
		if err != nil {
			s.log.Warn("ingest: subscribe attempt failed", "error", err)
			return nil, err
		}
		return sub, nil
	}, backoff.WithBackOff(bo))
}

func (s *Subscriber) consume(ctx context.Context, sub LogSubscription) error {
	for {
		res, err := sub.Recv(ctx)
		if err != nil {
			return err
		}
		if res == nil || res.Value.Err != nil {
			// Notifications for failed transactions carry no applied
			// state; the backfill pass marks their signatures.
			continue
		}
		s.handle(ctx, res.Value.Signature, res.Value.Logs)
	}
}

func (s *Subscriber) handle(ctx context.Context, signature solana.Signature, logs []string) {
	evs := events.ParseLogs(logs)
	if err := s.cfg.Applier.Apply(ctx, signature, evs); err != nil {
		// The signature stays unmarked, so the next backfill run retries it.
		s.log.Error("ingest: failed to apply live transaction", "signature", signature.String(), "error", err)
	}
}
