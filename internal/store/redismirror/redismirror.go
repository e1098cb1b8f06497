// Package redismirror is a persist.RemoteStore that keeps each collection in a
// Redis hash: field = document key, value = JSON document.
package redismirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/registrysync/internal/persist"
)

// DefaultPrefix namespaces the collection hashes.
const DefaultPrefix = "registrysync"

// upsertBatch caps the fields sent in a single HSET.
const upsertBatch = 500

// Mirror stores collections as hashes named "<prefix>:<collection>".
type Mirror struct {
	client redis.UniversalClient
	prefix string
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix string) *Mirror {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Mirror{client: client, prefix: prefix}
}

// Options configures Open.
type Options struct {
	URL      string
	Prefix   string
	PoolSize int
}

// Open parses a redis:// URL, connects, and verifies the server responds.
func Open(ctx context.Context, opts Options) (*Mirror, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opts.PoolSize > 0 {
		ro.PoolSize = opts.PoolSize
	}

	client := redis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, opts.Prefix), nil
}

func (m *Mirror) key(collection string) string {
	return m.prefix + ":" + collection
}

// SelectAll returns every document in the collection ordered by key.
func (m *Mirror) SelectAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	fields, err := m.client.HGetAll(ctx, m.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", m.key(collection), err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		out = append(out, json.RawMessage(fields[k]))
	}
	return out, nil
}

// Upsert writes rows in a MULTI/EXEC block so readers see all or none.
func (m *Mirror) Upsert(ctx context.Context, collection string, rows []persist.Row) error {
	if len(rows) == 0 {
		return nil
	}
	key := m.key(collection)

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for start := 0; start < len(rows); start += upsertBatch {
			end := min(start+upsertBatch, len(rows))
			values := make([]any, 0, 2*(end-start))
			for _, r := range rows[start:end] {
				values = append(values, r.Key, []byte(r.Data))
			}
			pipe.HSet(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Prune deletes every field not in keep.
func (m *Mirror) Prune(ctx context.Context, collection string, keep []string) error {
	key := m.key(collection)

	existing, err := m.client.HKeys(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hkeys %s: %w", key, err)
	}

	want := make(map[string]bool, len(keep))
	for _, k := range keep {
		want[k] = true
	}
	var stale []string
	for _, k := range existing {
		if !want[k] {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := m.client.HDel(ctx, key, stale...).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Client exposes the connection so other components, such as the HTTP rate
// limiter, can share it.
func (m *Mirror) Client() redis.UniversalClient {
	return m.client
}

func (m *Mirror) Close() error {
	return m.client.Close()
}
