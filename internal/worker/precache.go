package worker

import (
	"context"

	"github.com/52poke/kura/internal/cache"
	"github.com/52poke/kura/internal/policy"
	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"
)

// Precache fetches every reference concurrently and stores them in the
// static partition only if all of them succeeded. If storing fails midway the
// entries already written by this call are removed again.
func (w *Worker) Precache(ctx context.Context, refs []string) error {
	targets := make([]string, len(refs))
	for i, ref := range refs {
		u, err := w.origin.Resolve(ref)
		if err != nil {
			return errors.Wrapf(err, errors.CodeInvalidInput, "invalid precache url %q", ref)
		}
		if !w.origin.SameOrigin(u) && !w.policy.IsCrossOriginAllowed(u.Hostname()) {
			return errors.Newf(errors.CodeInvalidInput, "precache url %q is not on the origin", ref)
		}
		targets[i] = u.String()
	}

	entries := make([]cache.Entry, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			e, err := w.origin.Fetch(gctx, target, nil)
			if err != nil {
				return errors.WrapWithContext(err, errors.CodeNetwork, "precache fetch failed", map[string]interface{}{
					"url": target,
				})
			}
			if !e.OK() {
				return errors.WithContext(
					errors.Newf(errors.CodeUnavailable, "precache fetch returned status %d", e.Status),
					"url", target)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	partition := w.policy.PartitionFor(policy.ClassStatic)
	stored := make([]string, 0, len(targets))
	for i, target := range targets {
		if err := w.store.Put(ctx, partition, target, entries[i]); err != nil {
			w.rollback(ctx, partition, stored)
			return errors.WrapWithContext(err, errors.CodeUnavailable, "precache store failed", map[string]interface{}{
				"url": target,
			})
		}
		stored = append(stored, target)
	}
	w.logger.InfoContext(ctx, "precached resources", "partition", partition, "count", len(targets))
	return nil
}

func (w *Worker) rollback(ctx context.Context, partition string, keys []string) {
	for _, key := range keys {
		if err := w.store.Delete(ctx, partition, key); err != nil {
			w.logger.WarnContext(ctx, "precache rollback failed", "partition", partition, "url", key, "error", err)
		}
	}
}
