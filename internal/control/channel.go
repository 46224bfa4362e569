// Package control implements the administrative message channel: activation
// override, partition clearing, manual preloading and cache introspection.
package control

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/52poke/kura/internal/cache"
	"github.com/jmgilman/go/errors"
)

const (
	TypeSkipWaiting      = "SKIP_WAITING"
	TypeClearCache       = "CLEAR_CACHE"
	TypePreloadResources = "PRELOAD_RESOURCES"
	TypeGetCacheInfo     = "GET_CACHE_INFO"
)

// sampleSize caps the URLs listed per partition in cache info.
const sampleSize = 10

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply receives the answer to request/response style messages.
type Reply func(v any)

type PartitionInfo struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	URLs  []string `json:"urls"`
}

type clearCachePayload struct {
	CacheName string `json:"cacheName"`
}

type preloadPayload struct {
	URLs []string `json:"urls"`
}

// Lifecycle is the part of the worker driven by control messages.
type Lifecycle interface {
	SkipWaiting()
	Precache(ctx context.Context, refs []string) error
}

type Channel struct {
	Store  cache.Store
	Worker Lifecycle
	Logger *slog.Logger
}

func NewChannel(store cache.Store, worker Lifecycle, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{Store: store, Worker: worker, Logger: logger}
}

// Dispatch runs one control message. reply may be nil when the caller does
// not expect an answer.
func (c *Channel) Dispatch(ctx context.Context, msg Message, reply Reply) error {
	switch msg.Type {
	case TypeSkipWaiting:
		c.Worker.SkipWaiting()
		return nil
	case TypeClearCache:
		var p clearCachePayload
		if err := decodePayload(msg, &p); err != nil {
			return err
		}
		c.clearCache(ctx, p.CacheName)
		return nil
	case TypePreloadResources:
		var p preloadPayload
		if err := decodePayload(msg, &p); err != nil {
			return err
		}
		return c.preload(ctx, p.URLs)
	case TypeGetCacheInfo:
		info, err := c.CacheInfo(ctx)
		if err != nil {
			c.Logger.ErrorContext(ctx, "cache info failed", "error", err)
			return err
		}
		if reply != nil {
			reply(info)
		}
		return nil
	default:
		c.Logger.WarnContext(ctx, "unknown control message", "type", msg.Type)
		return errors.Newf(errors.CodeInvalidInput, "unknown message type %q", msg.Type)
	}
}

func decodePayload(msg Message, dst any) error {
	if len(msg.Payload) == 0 {
		return errors.Newf(errors.CodeInvalidInput, "%s requires a payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidInput, "invalid %s payload", msg.Type)
	}
	return nil
}

func (c *Channel) clearCache(ctx context.Context, name string) {
	existed, err := c.Store.DeletePartition(ctx, name)
	if err != nil {
		c.Logger.ErrorContext(ctx, "clear cache failed", "partition", name, "error", err)
		return
	}
	if !existed {
		c.Logger.WarnContext(ctx, "clear cache on missing partition", "partition", name)
		return
	}
	c.Logger.InfoContext(ctx, "cleared cache", "partition", name)
}

func (c *Channel) preload(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	if err := c.Worker.Precache(ctx, urls); err != nil {
		c.Logger.ErrorContext(ctx, "preload failed", "count", len(urls), "error", err)
		return err
	}
	return nil
}

// CacheInfo lists every partition with its entry count and the first
// sampleSize keys.
func (c *Channel) CacheInfo(ctx context.Context) ([]PartitionInfo, error) {
	names, err := c.Store.Partitions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "failed to list partitions")
	}
	info := make([]PartitionInfo, 0, len(names))
	for _, name := range names {
		keys, err := c.Store.Keys(ctx, name)
		if err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeUnavailable, "failed to list keys", map[string]interface{}{
				"partition": name,
			})
		}
		sample := keys
		if len(sample) > sampleSize {
			sample = sample[:sampleSize]
		}
		info = append(info, PartitionInfo{
			Name:  name,
			Count: len(keys),
			URLs:  append([]string{}, sample...),
		})
	}
	return info, nil
}
