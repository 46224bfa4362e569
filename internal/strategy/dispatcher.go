// Package strategy serves intercepted GET requests from a partitioned cache
// and the network, choosing one caching strategy per resource class.
//
// Every strategy returns (Result, error). err is non-nil only when neither
// the network nor the cache produced a usable response; it is a
// github.com/jmgilman/go/errors PlatformError with CodeNetwork.
package strategy

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/52poke/kura/internal/cache"
	"github.com/52poke/kura/internal/lock"
	"github.com/52poke/kura/internal/metrics"
	"github.com/52poke/kura/internal/policy"
	"github.com/jmgilman/go/errors"
)

// Fetcher performs the network half of a strategy. A transport failure is an
// error; a non-2xx response is returned as a normal entry.
type Fetcher interface {
	Fetch(ctx context.Context, target string, header http.Header) (cache.Entry, error)
}

type Source string

const (
	SourceHit         Source = "hit"
	SourceNetwork     Source = "network"
	SourceFallback    Source = "fallback"
	SourceStale       Source = "stale"
	SourcePlaceholder Source = "placeholder"
)

type Request struct {
	Class  policy.ResourceClass
	URL    string
	Header http.Header
}

type Result struct {
	Entry  cache.Entry
	Source Source
}

type Options struct {
	Policy  policy.Policy
	Store   cache.Store
	Fetcher Fetcher
	Logger  *slog.Logger

	// Locker collapses concurrent background refreshes of one key. Optional.
	Locker  lock.Locker
	LockTTL time.Duration
	// Latency records per-class handling time. Optional.
	Latency *metrics.LatencyTracker
	Now     func() time.Time
}

type Dispatcher struct {
	policy  policy.Policy
	store   cache.Store
	fetcher Fetcher
	logger  *slog.Logger
	locker  lock.Locker
	lockTTL time.Duration
	latency *metrics.LatencyTracker
	now     func() time.Time

	refreshes sync.WaitGroup
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		policy:  opts.Policy,
		store:   opts.Store,
		fetcher: opts.Fetcher,
		logger:  opts.Logger,
		locker:  opts.Locker,
		lockTTL: opts.LockTTL,
		latency: opts.Latency,
		now:     opts.Now,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.lockTTL <= 0 {
		d.lockTTL = 30 * time.Second
	}
	return d
}

func (d *Dispatcher) Handle(ctx context.Context, req Request) (Result, error) {
	if d.latency != nil {
		defer d.latency.Since("strategy."+string(req.Class), time.Now())
	}

	switch req.Class {
	case policy.ClassStatic:
		return d.cacheFirst(ctx, req, true)
	case policy.ClassFont:
		return d.cacheFirst(ctx, req, false)
	case policy.ClassAPI:
		return d.networkFirst(ctx, req)
	case policy.ClassImage:
		return d.image(ctx, req)
	default:
		return d.staleWhileRevalidate(ctx, req)
	}
}

// Wait blocks until every background refresh started so far has finished.
func (d *Dispatcher) Wait() {
	d.refreshes.Wait()
}

// match treats storage errors as a miss.
func (d *Dispatcher) match(ctx context.Context, partition, key string) (cache.Entry, bool) {
	e, err := d.store.Match(ctx, partition, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			d.logger.WarnContext(ctx, "cache match failed", "partition", partition, "url", key, "error", err)
		}
		return cache.Entry{}, false
	}
	return e, true
}

// put stores a clone of e. Failures are logged and never abort the response.
func (d *Dispatcher) put(ctx context.Context, partition, key string, e cache.Entry) {
	if err := d.store.Put(ctx, partition, key, e.Clone()); err != nil {
		d.logger.WarnContext(ctx, "cache put failed", "partition", partition, "url", key, "error", err)
	}
}

func (d *Dispatcher) fetch(ctx context.Context, target string, header http.Header) (cache.Entry, error) {
	if d.latency != nil {
		defer d.latency.Since("fetch", time.Now())
	}
	return d.fetcher.Fetch(ctx, target, header)
}

func (d *Dispatcher) expired(class policy.ResourceClass, e cache.Entry) bool {
	return d.policy.Expired(class, e.Header, d.now())
}

func networkError(err error, req Request) error {
	return errors.WrapWithContext(err, errors.CodeNetwork, "network failed and no usable cache entry", map[string]interface{}{
		"url":   req.URL,
		"class": string(req.Class),
	})
}
