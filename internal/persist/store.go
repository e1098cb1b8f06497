package persist

import (
	"context"
	"encoding/json"
)

// Snapshot keys in the local store, and collection names in the mirror.
const (
	KeyMembers  = "members"
	KeyAccounts = "accounts"
)

// LocalStore is the durable keyed snapshot store the registry hydrates from.
// Implementations serialize their own reads and writes.
type LocalStore interface {
	// Get returns the snapshot under key. ok is false when none exists.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	// Clear removes every snapshot.
	Clear(ctx context.Context) error
}

// BatchPutter is implemented by local stores that can write several snapshots
// atomically. The coordinator prefers it over successive Put calls.
type BatchPutter interface {
	PutAll(ctx context.Context, entries map[string][]byte) error
}

// Row is one keyed document in a remote collection.
type Row struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// RemoteStore is an optional mirror of the registry.
type RemoteStore interface {
	// SelectAll returns every document in collection. An unknown collection
	// is empty, not an error.
	SelectAll(ctx context.Context, collection string) ([]json.RawMessage, error)
	Upsert(ctx context.Context, collection string, rows []Row) error
}

// Pruner is implemented by remote stores that can drop documents. After a
// successful upsert the coordinator removes keys no longer in the registry so
// a later refresh cannot resurrect them.
type Pruner interface {
	Prune(ctx context.Context, collection string, keep []string) error
}
