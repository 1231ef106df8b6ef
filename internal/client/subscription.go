package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/errs"
)

const DefaultPollInterval = 3 * time.Second

// RefreshFunc re-reads whatever the subscriber is showing.
type RefreshFunc func(ctx context.Context) error

// Subscription runs a RefreshFunc on a fixed interval until it is stopped,
// its parent context ends, or the session is lost. Failed refreshes are
// logged and retried on the next tick.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func Subscribe(ctx context.Context, interval time.Duration, refresh RefreshFunc, log zerolog.Logger) *Subscription {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}
	go s.run(ctx, interval, refresh, log)
	return s
}

func (s *Subscription) run(ctx context.Context, interval time.Duration, refresh RefreshFunc, log zerolog.Logger) {
	defer close(s.done)
	defer s.cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := refresh(ctx); err != nil {
			if errs.SessionLost(err) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				log.Warn().Err(err).Msg("session lost, stopping refresh")
				return
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("refresh failed, retrying next tick")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the loop and waits for it to exit.
func (s *Subscription) Stop() {
	s.cancel()
	<-s.done
}

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports the session error that ended the loop, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
