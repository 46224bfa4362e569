package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/52poke/kura/internal/cache"
	"github.com/52poke/kura/internal/origin"
	"github.com/52poke/kura/internal/policy"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server  *httptest.Server
	failing atomic.Bool
	misses  atomic.Int64
	store   *cache.MemoryStore
	policy  policy.Policy
	worker  *Worker
}

// flakyStore fails the first Partitions calls and the nth Put.
type flakyStore struct {
	*cache.MemoryStore
	listFailures atomic.Int64
	failPutAt    int64
	puts         atomic.Int64
}

func (s *flakyStore) Partitions(ctx context.Context) ([]string, error) {
	if s.listFailures.Add(-1) >= 0 {
		return nil, fmt.Errorf("listing unavailable")
	}
	return s.MemoryStore.Partitions(ctx)
}

func (s *flakyStore) Put(ctx context.Context, partition, key string, e cache.Entry) error {
	if s.puts.Add(1) == s.failPutAt {
		return fmt.Errorf("quota exceeded")
	}
	return s.MemoryStore.Put(ctx, partition, key, e)
}

func (f *fixture) useStore(t *testing.T, store cache.Store) {
	t.Helper()
	client, err := origin.NewClient(f.server.URL, time.Second)
	require.NoError(t, err)
	f.worker = New(f.policy, store, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  cache.NewMemoryStore(),
		policy: policy.Default("kura", "v2"),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.failing.Load() && r.URL.Path == "/manifest.json" {
			f.misses.Add(1)
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "seed:"+r.URL.Path)
	}))
	t.Cleanup(f.server.Close)

	client, err := origin.NewClient(f.server.URL, time.Second)
	require.NoError(t, err)
	f.worker = New(f.policy, f.store, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func TestInstallPrecachesSeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.worker.Install(ctx))
	require.Equal(t, StateInstalled, f.worker.State())
	require.False(t, f.worker.Controlling())

	names, err := f.store.Partitions(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"kura-static-v2", "kura-dynamic-v2", "kura-images-v2"}, names)

	keys, err := f.store.Keys(ctx, "kura-static-v2")
	require.NoError(t, err)
	require.Len(t, keys, len(f.policy.SeedPaths))

	e, err := f.store.Match(ctx, "kura-static-v2", f.server.URL+"/manifest.json")
	require.NoError(t, err)
	require.Equal(t, "seed:/manifest.json", string(e.Body))
}

func TestInstallIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.failing.Store(true)
	ctx := context.Background()

	err := f.worker.Install(ctx)
	require.Error(t, err)
	require.True(t, errors.IsRetryable(err))
	require.Equal(t, StateParsed, f.worker.State())

	keys, err := f.store.Keys(ctx, "kura-static-v2")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestActivateDeletesOtherVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := cache.Entry{URL: "https://shop.test/", Status: http.StatusOK, Body: []byte("old")}
	for _, name := range []string{"kura-static-v1", "kura-images-v1", "legacy", "shop-static-v1"} {
		require.NoError(t, f.store.Put(ctx, name, stale.URL, stale))
	}
	require.NoError(t, f.store.Put(ctx, "kura-images-v2", stale.URL, stale))

	require.NoError(t, f.worker.Install(ctx))
	require.NoError(t, f.worker.Activate(ctx))
	require.Equal(t, StateActivated, f.worker.State())
	require.True(t, f.worker.Controlling())

	// Partitions outside the kura- prefix belong to other tenants of the store.
	names, err := f.store.Partitions(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"legacy", "shop-static-v1", "kura-static-v2", "kura-dynamic-v2", "kura-images-v2"}, names)

	e, err := f.store.Match(ctx, "kura-images-v2", stale.URL)
	require.NoError(t, err)
	require.Equal(t, "old", string(e.Body))
}

func TestRunRetriesInstall(t *testing.T) {
	f := newFixture(t)
	f.failing.Store(true)

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(context.Background(), 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return f.misses.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.False(t, f.worker.Controlling())
	f.failing.Store(false)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not activate")
	}
	require.True(t, f.worker.Controlling())
	require.Equal(t, StateActivated, f.worker.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.failing.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool { return f.misses.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	require.False(t, f.worker.Controlling())
}

func TestSkipWaitingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.worker.SkipWaiting()
	f.worker.SkipWaiting()

	select {
	case <-f.worker.skip:
	default:
		t.Fatal("skip channel not closed")
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "installing", StateInstalling.String())
	require.Equal(t, "activated", StateActivated.String())
	require.Equal(t, "unknown", State(42).String())
}

func TestPrecacheRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	store := &flakyStore{MemoryStore: f.store, failPutAt: 3}
	f.useStore(t, store)
	ctx := context.Background()

	err := f.worker.Install(ctx)
	require.Error(t, err)
	require.True(t, errors.IsRetryable(err))

	keys, err := f.store.Keys(ctx, "kura-static-v2")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestPrecacheRejectsForeignURLs(t *testing.T) {
	f := newFixture(t)

	err := f.worker.Precache(context.Background(), []string{"/index.html", "http://10.0.0.7/admin/keys"})
	require.Error(t, err)
	require.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	keys, err := f.store.Keys(context.Background(), "kura-static-v2")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestRunRetriesActivate(t *testing.T) {
	f := newFixture(t)
	store := &flakyStore{MemoryStore: f.store}
	store.listFailures.Store(2)
	f.useStore(t, store)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.worker.Run(ctx, 10*time.Millisecond))
	require.True(t, f.worker.Controlling())
	require.Equal(t, StateActivated, f.worker.State())
	require.Equal(t, int64(-1), store.listFailures.Load())
}
