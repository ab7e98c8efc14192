// Package memstore is an in-process BlobStore for tests and local runs.
package memstore

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
)

type object struct {
	data    []byte
	updated time.Time
}

// Store keeps objects in a map guarded by a mutex.
type Store struct {
	bucket string

	mu      sync.Mutex
	objects map[string]object
}

// New creates an empty store. bucket only affects URI.
func New(bucket string) *Store {
	return &Store{bucket: bucket, objects: make(map[string]object)}
}

// List snapshots matching names at call time and yields them in order.
func (s *Store) List(ctx context.Context, prefix string) iter.Seq2[domain.BlobRef, error] {
	return func(yield func(domain.BlobRef, error) bool) {
		s.mu.Lock()
		refs := make([]domain.BlobRef, 0, len(s.objects))
		for name, obj := range s.objects {
			if strings.HasPrefix(name, prefix) {
				refs = append(refs, domain.BlobRef{Name: name, Size: int64(len(obj.data)), Updated: obj.updated})
			}
		}
		s.mu.Unlock()

		sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				yield(domain.BlobRef{}, err)
				return
			}
			if !yield(ref, nil) {
				return
			}
		}
	}
}

func (s *Store) Read(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, domain.ErrBlobNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *Store) Upload(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[name] = object{data: append([]byte(nil), data...), updated: domain.Now()}
	return nil
}

func (s *Store) Rename(_ context.Context, ref domain.BlobRef, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[ref.Name]
	if !ok {
		return fmt.Errorf("rename %s: %w", ref.Name, domain.ErrBlobNotFound)
	}
	s.objects[newName] = obj
	delete(s.objects, ref.Name)
	return nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, domain.ErrBlobNotFound)
	}
	delete(s.objects, name)
	return nil
}

func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.objects[name]
	return ok, nil
}

func (s *Store) URI(name string) string {
	return "mem://" + s.bucket + "/" + name
}

// Names returns every stored object name in order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
