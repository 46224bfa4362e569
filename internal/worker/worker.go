// Package worker drives the cache layer lifecycle: install (partition
// creation and seed pre-caching), activation (eviction of partitions from
// other versions) and the claim of incoming traffic.
package worker

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/52poke/kura/internal/cache"
	"github.com/52poke/kura/internal/policy"
	"github.com/52poke/kura/internal/strategy"
	"github.com/jmgilman/go/errors"
)

type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Origin fetches resources and resolves origin-relative references.
type Origin interface {
	strategy.Fetcher
	Resolve(ref string) (*url.URL, error)
	SameOrigin(u *url.URL) bool
}

type Worker struct {
	policy policy.Policy
	store  cache.Store
	origin Origin
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	skip        chan struct{}
	skipOnce    sync.Once
	controlling atomic.Bool
}

func New(pol policy.Policy, store cache.Store, org Origin, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		policy: pol,
		store:  store,
		origin: org,
		logger: logger,
		skip:   make(chan struct{}),
	}
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	w.logger.Info("worker state changed", "from", prev.String(), "to", s.String(), "version", w.policy.Version)
}

// Controlling reports whether clients have been claimed.
func (w *Worker) Controlling() bool {
	return w.controlling.Load()
}

// SkipWaiting lets an installed worker activate without waiting. Calling it
// more than once, or after activation, has no further effect.
func (w *Worker) SkipWaiting() {
	w.skipOnce.Do(func() { close(w.skip) })
}

// Install opens every partition and pre-caches the seed list. Any failure
// fails the whole step and leaves the worker ready for another attempt.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)

	for _, name := range w.policy.Partitions() {
		if err := w.store.Open(ctx, name); err != nil {
			w.setState(StateParsed)
			return errors.WrapWithContext(err, errors.CodeUnavailable, "failed to open partition", map[string]interface{}{
				"partition": name,
			})
		}
	}
	if err := w.Precache(ctx, w.policy.SeedPaths); err != nil {
		w.setState(StateParsed)
		return err
	}

	w.setState(StateInstalled)
	w.SkipWaiting()
	return nil
}

// Activate deletes every partition under the policy prefix whose name lacks
// the current version and then claims clients. Partitions outside the prefix
// belong to someone else and are never touched.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)

	names, err := w.store.Partitions(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return errors.Wrap(err, errors.CodeUnavailable, "failed to list partitions")
	}
	for _, name := range names {
		if !w.policy.Owns(name) || w.policy.IsCurrent(name) {
			continue
		}
		if _, err := w.store.DeletePartition(ctx, name); err != nil {
			w.setState(StateInstalled)
			return errors.WrapWithContext(err, errors.CodeUnavailable, "failed to delete stale partition", map[string]interface{}{
				"partition": name,
			})
		}
		w.logger.InfoContext(ctx, "deleted stale partition", "partition", name)
	}

	w.claim()
	w.setState(StateActivated)
	return nil
}

func (w *Worker) claim() {
	w.controlling.Store(true)
}

// Run installs, waits for skip-waiting and activates. Retryable failures of
// either step are retried every retry interval. It returns once the worker
// controls traffic.
func (w *Worker) Run(ctx context.Context, retry time.Duration) error {
	if err := w.retry(ctx, "install", retry, w.Install); err != nil {
		return err
	}

	select {
	case <-w.skip:
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.retry(ctx, "activate", retry, w.Activate)
}

func (w *Worker) retry(ctx context.Context, step string, every time.Duration, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			w.setState(StateRedundant)
			return err
		}
		w.logger.WarnContext(ctx, "lifecycle step failed, retrying", "step", step, "attempt", attempt, "retry_in", every, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
}
