package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/52poke/kura/internal/cache"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/require"
)

type fakeLifecycle struct {
	mu        sync.Mutex
	skipped   int
	preloaded [][]string
	err       error
}

func (f *fakeLifecycle) SkipWaiting() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipped++
}

func (f *fakeLifecycle) Precache(_ context.Context, refs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.preloaded = append(f.preloaded, refs)
	return nil
}

type brokenStore struct {
	*cache.MemoryStore
}

func (brokenStore) DeletePartition(context.Context, string) (bool, error) {
	return false, fmt.Errorf("storage offline")
}

func newChannel(t *testing.T, store cache.Store) (*Channel, *fakeLifecycle) {
	t.Helper()
	lc := &fakeLifecycle{}
	return NewChannel(store, lc, slog.New(slog.NewTextHandler(io.Discard, nil))), lc
}

func fill(t *testing.T, store cache.Store, partition string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("https://shop.test/item/%d", i)
		require.NoError(t, store.Put(context.Background(), partition, u, cache.Entry{URL: u, Status: http.StatusOK}))
	}
}

func TestCacheInfoCountsAndCapsSample(t *testing.T) {
	store := cache.NewMemoryStore()
	fill(t, store, "kura-static-v1", 3)
	fill(t, store, "kura-dynamic-v1", 25)
	require.NoError(t, store.Open(context.Background(), "kura-images-v1"))
	ch, _ := newChannel(t, store)

	var got []PartitionInfo
	err := ch.Dispatch(context.Background(), Message{Type: TypeGetCacheInfo}, func(v any) {
		got = v.([]PartitionInfo)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	byName := map[string]PartitionInfo{}
	for _, info := range got {
		byName[info.Name] = info
	}
	require.Equal(t, 3, byName["kura-static-v1"].Count)
	require.Len(t, byName["kura-static-v1"].URLs, 3)
	require.Equal(t, 25, byName["kura-dynamic-v1"].Count)
	require.Len(t, byName["kura-dynamic-v1"].URLs, sampleSize)
	require.Equal(t, "https://shop.test/item/0", byName["kura-dynamic-v1"].URLs[0])
	require.Equal(t, 0, byName["kura-images-v1"].Count)
	require.Empty(t, byName["kura-images-v1"].URLs)
}

func TestClearCache(t *testing.T) {
	store := cache.NewMemoryStore()
	fill(t, store, "kura-static-v1", 2)
	fill(t, store, "kura-dynamic-v1", 2)
	ch, _ := newChannel(t, store)

	msg := Message{Type: TypeClearCache, Payload: json.RawMessage(`{"cacheName":"kura-dynamic-v1"}`)}
	require.NoError(t, ch.Dispatch(context.Background(), msg, nil))

	names, err := store.Partitions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"kura-static-v1"}, names)

	msg = Message{Type: TypeClearCache, Payload: json.RawMessage(`{"cacheName":"missing"}`)}
	require.NoError(t, ch.Dispatch(context.Background(), msg, nil))
}

func TestClearCacheSwallowsStoreErrors(t *testing.T) {
	ch, _ := newChannel(t, brokenStore{cache.NewMemoryStore()})

	msg := Message{Type: TypeClearCache, Payload: json.RawMessage(`{"cacheName":"kura-static-v1"}`)}
	require.NoError(t, ch.Dispatch(context.Background(), msg, nil))
}

func TestSkipWaitingAndPreload(t *testing.T) {
	ch, lc := newChannel(t, cache.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, ch.Dispatch(ctx, Message{Type: TypeSkipWaiting}, nil))
	require.Equal(t, 1, lc.skipped)

	msg := Message{Type: TypePreloadResources, Payload: json.RawMessage(`{"urls":["/a.js","/b.css"]}`)}
	require.NoError(t, ch.Dispatch(ctx, msg, nil))
	require.Equal(t, [][]string{{"/a.js", "/b.css"}}, lc.preloaded)

	lc.err = errors.New(errors.CodeNetwork, "origin down")
	err := ch.Dispatch(ctx, msg, nil)
	require.Error(t, err)
	require.Equal(t, errors.CodeNetwork, errors.GetCode(err))
}

func TestDispatchRejectsBadMessages(t *testing.T) {
	ch, _ := newChannel(t, cache.NewMemoryStore())
	ctx := context.Background()

	err := ch.Dispatch(ctx, Message{Type: "REBOOT"}, nil)
	require.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	err = ch.Dispatch(ctx, Message{Type: TypeClearCache}, nil)
	require.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	err = ch.Dispatch(ctx, Message{Type: TypePreloadResources, Payload: json.RawMessage(`{"urls":"nope"}`)}, nil)
	require.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestHandler(t *testing.T) {
	store := cache.NewMemoryStore()
	fill(t, store, "kura-static-v1", 12)
	ch, lc := newChannel(t, store)
	h := &Handler{Channel: ch}

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_kura/messages", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"type":"GET_CACHE_INFO"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var info []PartitionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Len(t, info, 1)
	require.Equal(t, 12, info[0].Count)
	require.Len(t, info[0].URLs, sampleSize)

	rec = post(`{"type":"SKIP_WAITING"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, lc.skipped)

	lc.err = errors.New(errors.CodeNetwork, "origin down")
	rec = post(`{"type":"PRELOAD_RESOURCES","payload":{"urls":["/a.js"]}}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	require.Equal(t, http.StatusBadRequest, post(`{`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"payload":{}}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"type":"REBOOT"}`).Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_kura/messages", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
