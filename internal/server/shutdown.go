// Package server coordinates graceful shutdown of the sds process.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// Timeout bounds the whole shutdown sequence.
	// Default: 30 seconds
	Timeout time.Duration

	// DrainTimeout bounds the wait for in-flight requests.
	// Default: 15 seconds
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout:      30 * time.Second,
		DrainTimeout: 15 * time.Second,
	}
}

// Step is one shutdown action. It receives the shutdown deadline context.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// ShutdownManager runs registered steps in reverse registration order once
// shutdown begins, after in-flight requests drain.
type ShutdownManager struct {
	cfg    ShutdownConfig
	logger *slog.Logger

	done     chan struct{}
	once     sync.Once
	inFlight atomic.Int64
	stopping atomic.Bool

	mu    sync.Mutex
	steps []Step
}

// NewShutdownManager creates a shutdown manager.
func NewShutdownManager(cfg ShutdownConfig, logger *slog.Logger) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownManager{cfg: cfg, logger: logger, done: make(chan struct{})}
}

// Register adds a shutdown step.
func (sm *ShutdownManager) Register(name string, run func(ctx context.Context) error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.steps = append(sm.steps, Step{Name: name, Run: run})
}

// RegisterCloser adds a step that closes c.
func (sm *ShutdownManager) RegisterCloser(name string, c io.Closer) {
	sm.Register(name, func(context.Context) error { return c.Close() })
}

// ListenForSignals blocks until SIGTERM, SIGINT, ctx cancellation or
// another caller starting the shutdown, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.done:
		return nil
	}
}

// Shutdown drains in-flight requests and runs every step. Every step runs
// even when an earlier one fails; the errors are joined. Later calls
// return nil.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var err error
	sm.once.Do(func() {
		sm.stopping.Store(true)
		close(sm.done)
		sm.logger.Info("shutting down", "reason", reason)

		ctx, cancel := context.WithTimeout(ctx, sm.cfg.Timeout)
		defer cancel()

		var errs []error
		if derr := sm.drain(ctx); derr != nil {
			errs = append(errs, derr)
		}

		sm.mu.Lock()
		steps := append([]Step(nil), sm.steps...)
		sm.mu.Unlock()
		for i := len(steps) - 1; i >= 0; i-- {
			if serr := steps[i].Run(ctx); serr != nil {
				sm.logger.Warn("shutdown step failed", "step", steps[i].Name, "error", serr)
				errs = append(errs, fmt.Errorf("%s: %w", steps[i].Name, serr))
			}
		}
		err = errors.Join(errs...)
		sm.logger.Info("shutdown complete")
	})
	return err
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for sm.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %d in-flight requests", sm.inFlight.Load())
		case <-ticker.C:
		}
	}
	return nil
}

// TrackRequest counts a request in flight. It returns false once shutdown
// has begun.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.stopping.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// UntrackRequest ends a request started with TrackRequest.
func (sm *ShutdownManager) UntrackRequest() {
	sm.inFlight.Add(-1)
}

// InFlight returns the number of requests in flight.
func (sm *ShutdownManager) InFlight() int64 {
	return sm.inFlight.Load()
}

// Done is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// Middleware tracks in-flight requests and rejects new ones with 503
// during shutdown.
func (sm *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.TrackRequest() {
			w.Header().Set("Connection", "close")
			http.Error(w, "service unavailable: shutting down", http.StatusServiceUnavailable)
			return
		}
		defer sm.UntrackRequest()
		next.ServeHTTP(w, r)
	})
}
