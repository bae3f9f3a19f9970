package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunnerRetriesOnError(t *testing.T) {
	r := NewRunner(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	r.Add(ctx, "flaky", func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("boom")
		}
		cancel()
		return nil
	})

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("runner did not finish in time")
	}

	if atomic.LoadInt32(&calls) < 3 {
		t.Fatalf("expected at least 3 calls, got %d", calls)
	}
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	r := NewRunner(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	r.Add(ctx, "always-fails", func(ctx context.Context) error {
		return errors.New("persistent failure")
	})

	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop after context cancel")
	}
}

func TestDetermineBackoffEscalates(t *testing.T) {
	now := time.Now()

	var few []time.Time
	for i := 0; i < 3; i++ {
		few = append(few, now)
	}
	if got := determineBackoff(few); got != 8*time.Second {
		t.Fatalf("expected 8s backoff for 3 recent failures, got %s", got)
	}

	var many []time.Time
	for i := 0; i < 6; i++ {
		many = append(many, now)
	}
	if got := determineBackoff(many); got != 15*time.Second {
		t.Fatalf("expected 15s backoff for 6 recent failures, got %s", got)
	}

	var lots []time.Time
	for i := 0; i < 11; i++ {
		lots = append(lots, now)
	}
	if got := determineBackoff(lots); got != 45*time.Second {
		t.Fatalf("expected 45s backoff for 11 recent failures, got %s", got)
	}
}
