package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"minha-agenda/backend/internal/config"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	n     int64
	err   error
	// cancel stops the loop after the given number of calls.
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *countingSweeper) SweepExpiredSessions(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.cancel != nil && s.calls >= s.cancelAfter {
		s.cancel()
	}
	return s.n, s.err
}

func TestRunLoop_SweepsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &countingSweeper{n: 2, cancelAfter: 3, cancel: cancel}

	done := make(chan struct{})
	go func() {
		runLoop(ctx, s, time.Millisecond, zap.NewNop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not stop after cancel")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}

func TestSweepOnce_Logging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zl := zap.New(core)

	sweepOnce(context.Background(), &countingSweeper{n: 4}, zl)
	sweepOnce(context.Background(), &countingSweeper{}, zl)
	sweepOnce(context.Background(), &countingSweeper{err: errors.New("db down")}, zl)

	if got := logs.FilterMessage("worker: expired sessions deactivated").Len(); got != 1 {
		t.Errorf("deactivated logs = %d, want 1", got)
	}
	if got := logs.FilterMessage("worker: sweep failed").Len(); got != 1 {
		t.Errorf("failure logs = %d, want 1", got)
	}
}

func TestRun_ReturnsSetupErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	err := run(&config.Config{JWTSecret: "short"}, zap.New(core))
	if err == nil || !strings.HasPrefix(err.Error(), "identity:") {
		t.Fatalf("run = %v, want identity error", err)
	}
	if logs.FilterMessage("worker: stopped").Len() != 0 {
		t.Error("run should not reach the sweep loop")
	}
}
