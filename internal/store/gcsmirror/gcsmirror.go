// Package gcsmirror is a persist.RemoteStore that keeps each collection as one
// JSON object in a Cloud Storage bucket:
//
//	gs://<bucket>/<prefix>/<collection>.json → {"<key>": <document>, ...}
//
// Writes are read-modify-write guarded by generation preconditions, so two
// writers never silently overwrite each other; a lost race is retried.
package gcsmirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JonMunkholm/registrysync/internal/persist"
)

// maxAttempts bounds retries after a precondition failure.
const maxAttempts = 3

var errConflict = errors.New("object changed concurrently")

// objects is the slice of Cloud Storage the mirror needs. gen is the object
// generation; zero means the object does not exist.
type objects interface {
	read(ctx context.Context, name string) (data []byte, gen int64, err error)
	write(ctx context.Context, name string, data []byte, gen int64) error
}

// Mirror stores collections as objects under prefix.
type Mirror struct {
	objs   objects
	prefix string
	closer io.Closer
}

// Options configures Open.
type Options struct {
	Bucket string
	Prefix string
	// Endpoint overrides the API endpoint, e.g. for a local emulator.
	// Requests to a custom endpoint are sent without credentials.
	Endpoint string
}

// Open creates a storage client using Application Default Credentials.
func Open(ctx context.Context, opts Options) (*Mirror, error) {
	if opts.Bucket == "" {
		return nil, errors.New("gcs mirror: bucket required")
	}

	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(opts.Endpoint),
			option.WithoutAuthentication(),
		)
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	m := newMirror(&bucketObjects{bucket: client.Bucket(opts.Bucket)}, opts.Prefix)
	m.closer = client
	return m, nil
}

func newMirror(objs objects, prefix string) *Mirror {
	return &Mirror{objs: objs, prefix: prefix}
}

func (m *Mirror) objectName(collection string) string {
	return path.Join(m.prefix, collection+".json")
}

func (m *Mirror) load(ctx context.Context, collection string) (map[string]json.RawMessage, int64, error) {
	data, gen, err := m.objs.read(ctx, m.objectName(collection))
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", m.objectName(collection), err)
	}
	docs := make(map[string]json.RawMessage)
	if gen == 0 || len(data) == 0 {
		return docs, gen, nil
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", m.objectName(collection), err)
	}
	return docs, gen, nil
}

// SelectAll returns every document in the collection ordered by key.
func (m *Mirror) SelectAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	docs, _, err := m.load(ctx, collection)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		out = append(out, docs[k])
	}
	return out, nil
}

func (m *Mirror) Upsert(ctx context.Context, collection string, rows []persist.Row) error {
	if len(rows) == 0 {
		return nil
	}
	return m.modify(ctx, collection, func(docs map[string]json.RawMessage) bool {
		for _, r := range rows {
			docs[r.Key] = r.Data
		}
		return true
	})
}

// Prune deletes every document whose key is not in keep.
func (m *Mirror) Prune(ctx context.Context, collection string, keep []string) error {
	want := make(map[string]bool, len(keep))
	for _, k := range keep {
		want[k] = true
	}
	return m.modify(ctx, collection, func(docs map[string]json.RawMessage) bool {
		changed := false
		for k := range docs {
			if !want[k] {
				delete(docs, k)
				changed = true
			}
		}
		return changed
	})
}

// modify applies fn to the current collection and writes it back if fn
// reports a change, retrying when another writer got there first.
func (m *Mirror) modify(ctx context.Context, collection string, fn func(map[string]json.RawMessage) bool) error {
	var err error
	for range maxAttempts {
		var docs map[string]json.RawMessage
		var gen int64
		docs, gen, err = m.load(ctx, collection)
		if err != nil {
			return err
		}
		if !fn(docs) {
			return nil
		}

		data, merr := json.Marshal(docs)
		if merr != nil {
			return fmt.Errorf("encode %s: %w", collection, merr)
		}

		err = m.objs.write(ctx, m.objectName(collection), data, gen)
		if !errors.Is(err, errConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", m.objectName(collection), err)
	}
	return nil
}

// Close releases the storage client.
func (m *Mirror) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

// bucketObjects implements objects on a real bucket.
type bucketObjects struct {
	bucket *storage.BucketHandle
}

func (b *bucketObjects) read(ctx context.Context, name string) ([]byte, int64, error) {
	r, err := b.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return data, r.Attrs.Generation, nil
}

func (b *bucketObjects) write(ctx context.Context, name string, data []byte, gen int64) error {
	obj := b.bucket.Object(name)
	if gen == 0 {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	} else {
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return errConflict
		}
		return err
	}
	return nil
}
