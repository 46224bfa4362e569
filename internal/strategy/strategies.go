package strategy

import (
	"context"
	"time"
)

// cacheFirst serves a fresh cached entry, otherwise the network. When the
// network fails any cached entry is served, expired or not.
func (d *Dispatcher) cacheFirst(ctx context.Context, req Request, checkExpiry bool) (Result, error) {
	partition := d.policy.PartitionFor(req.Class)
	cached, hit := d.match(ctx, partition, req.URL)
	if hit && (!checkExpiry || !d.expired(req.Class, cached)) {
		return Result{Entry: cached, Source: SourceHit}, nil
	}

	fresh, err := d.fetch(ctx, req.URL, req.Header)
	if err != nil {
		if hit {
			d.logger.DebugContext(ctx, "network failed, serving cached entry", "url", req.URL, "error", err)
			return Result{Entry: cached, Source: SourceFallback}, nil
		}
		return Result{}, networkError(err, req)
	}
	if fresh.OK() {
		d.put(ctx, partition, req.URL, fresh)
	}
	return Result{Entry: fresh, Source: SourceNetwork}, nil
}

// networkFirst always tries the network. The cache is consulted only when the
// network fails, and only an unexpired entry is acceptable.
func (d *Dispatcher) networkFirst(ctx context.Context, req Request) (Result, error) {
	partition := d.policy.PartitionFor(req.Class)
	fresh, err := d.fetch(ctx, req.URL, req.Header)
	if err == nil {
		if fresh.OK() {
			d.put(ctx, partition, req.URL, fresh)
		}
		return Result{Entry: fresh, Source: SourceNetwork}, nil
	}

	cached, hit := d.match(ctx, partition, req.URL)
	if hit && !d.expired(req.Class, cached) {
		d.logger.DebugContext(ctx, "network failed, serving cached entry", "url", req.URL, "error", err)
		return Result{Entry: cached, Source: SourceFallback}, nil
	}
	return Result{}, networkError(err, req)
}

// staleWhileRevalidate returns a cached entry at once and refreshes it in the
// background. Without a cached entry it behaves like a plain network fetch.
func (d *Dispatcher) staleWhileRevalidate(ctx context.Context, req Request) (Result, error) {
	partition := d.policy.PartitionFor(req.Class)
	cached, hit := d.match(ctx, partition, req.URL)
	if hit {
		d.revalidate(ctx, partition, req)
		return Result{Entry: cached, Source: SourceStale}, nil
	}

	fresh, err := d.fetch(ctx, req.URL, req.Header)
	if err != nil {
		return Result{}, networkError(err, req)
	}
	if fresh.OK() {
		d.put(ctx, partition, req.URL, fresh)
	}
	return Result{Entry: fresh, Source: SourceNetwork}, nil
}

// revalidate starts a detached refresh. The caller's cancellation does not
// reach it and its errors are dropped.
func (d *Dispatcher) revalidate(ctx context.Context, partition string, req Request) {
	header := req.Header.Clone()
	bg := context.WithoutCancel(ctx)

	d.refreshes.Add(1)
	go func() {
		defer d.refreshes.Done()

		rctx := bg
		if d.policy.RefreshTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(bg, d.policy.RefreshTimeout)
			defer cancel()
		}

		if d.locker != nil {
			l, ok, err := d.locker.TryLock(rctx, "lock:refresh:"+partition+":"+req.URL, d.lockTTL)
			if err != nil || !ok {
				d.logger.DebugContext(rctx, "refresh skipped", "url", req.URL, "acquired", ok, "error", err)
				return
			}
			defer l.Unlock(bg)
		}

		start := time.Now()
		fresh, err := d.fetch(rctx, req.URL, header)
		if err != nil {
			d.logger.DebugContext(rctx, "background refresh failed", "url", req.URL, "error", err)
			return
		}
		if fresh.OK() {
			d.put(rctx, partition, req.URL, fresh)
		}
		d.logger.DebugContext(rctx, "background refresh done", "url", req.URL, "status", fresh.Status, "elapsed", time.Since(start))
	}()
}
