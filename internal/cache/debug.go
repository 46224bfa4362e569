package cache

import (
	"context"
	"log/slog"
)

// Debug wraps any Store and logs every call at debug level.
type Debug struct {
	store  Store
	logger *slog.Logger
}

var _ Store = (*Debug)(nil)

func NewDebug(store Store, logger *slog.Logger) *Debug {
	return &Debug{store: store, logger: logger}
}

func (d *Debug) Open(ctx context.Context, partition string) error {
	err := d.store.Open(ctx, partition)
	d.logger.DebugContext(ctx, "cache open", "partition", partition, "error", err)
	return err
}

func (d *Debug) Match(ctx context.Context, partition, key string) (Entry, error) {
	e, err := d.store.Match(ctx, partition, key)
	switch {
	case err == nil:
		d.logger.DebugContext(ctx, "cache match", "partition", partition, "key", key, "status", e.Status)
	case err == ErrNotFound:
		d.logger.DebugContext(ctx, "cache miss", "partition", partition, "key", key)
	default:
		d.logger.DebugContext(ctx, "cache match failed", "partition", partition, "key", key, "error", err)
	}
	return e, err
}

func (d *Debug) Put(ctx context.Context, partition, key string, e Entry) error {
	err := d.store.Put(ctx, partition, key, e)
	d.logger.DebugContext(ctx, "cache put", "partition", partition, "key", key, "size", len(e.Body), "error", err)
	return err
}

func (d *Debug) Delete(ctx context.Context, partition, key string) error {
	err := d.store.Delete(ctx, partition, key)
	d.logger.DebugContext(ctx, "cache delete", "partition", partition, "key", key, "error", err)
	return err
}

func (d *Debug) Keys(ctx context.Context, partition string) ([]string, error) {
	keys, err := d.store.Keys(ctx, partition)
	d.logger.DebugContext(ctx, "cache keys", "partition", partition, "count", len(keys), "error", err)
	return keys, err
}

func (d *Debug) Partitions(ctx context.Context) ([]string, error) {
	names, err := d.store.Partitions(ctx)
	d.logger.DebugContext(ctx, "cache partitions", "partitions", names, "error", err)
	return names, err
}

func (d *Debug) DeletePartition(ctx context.Context, partition string) (bool, error) {
	existed, err := d.store.DeletePartition(ctx, partition)
	d.logger.DebugContext(ctx, "cache delete partition", "partition", partition, "existed", existed, "error", err)
	return existed, err
}
