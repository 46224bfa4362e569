package cache

import (
	"context"
	"errors"
	"net/http"
)

var ErrNotFound = errors.New("cache entry not found")

// Entry is a captured response snapshot keyed by absolute request URL.
type Entry struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

func (e Entry) OK() bool {
	return e.Status >= 200 && e.Status < 300
}

func (e Entry) Clone() Entry {
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	return Entry{
		URL:    e.URL,
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   body,
	}
}

// Store is a set of named partitions, each mapping request URL to Entry.
// Put overwrites an existing key. Implementations must be safe for
// concurrent use.
type Store interface {
	// Open creates the partition if it does not exist yet.
	Open(ctx context.Context, partition string) error
	Match(ctx context.Context, partition, key string) (Entry, error)
	Put(ctx context.Context, partition, key string, e Entry) error
	// Delete removes one key. A missing key is not an error.
	Delete(ctx context.Context, partition, key string) error
	Keys(ctx context.Context, partition string) ([]string, error)
	Partitions(ctx context.Context) ([]string, error)
	// DeletePartition reports whether the partition existed.
	DeletePartition(ctx context.Context, partition string) (bool, error)
}
