package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/errs"
)

func waitDone(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription did not stop")
	}
}

func TestSubscriptionRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	s := Subscribe(context.Background(), 5*time.Millisecond, func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, zerolog.Nop())

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if calls.Load() < 4 {
		t.Fatalf("expected refresh to keep running after failures, got %d calls", calls.Load())
	}
	if s.Err() != nil {
		t.Fatalf("expected no session error, got %v", s.Err())
	}
}

func TestSubscriptionStopsOnSessionLoss(t *testing.T) {
	var calls atomic.Int32
	s := Subscribe(context.Background(), 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errs.ErrExpiredSession
	}, zerolog.Nop())

	waitDone(t, s)
	if !errs.SessionLost(s.Err()) {
		t.Fatalf("expected session error, got %v", s.Err())
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single refresh, got %d", calls.Load())
	}
}

func TestSubscriptionStopsWithParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Subscribe(ctx, time.Hour, func(context.Context) error { return nil }, zerolog.Nop())
	cancel()
	waitDone(t, s)
	s.Stop()
}
