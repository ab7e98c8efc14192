// Package gcs implements domain.BlobStore on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const contentTypeJSON = "application/json"

// Store is a bucket-scoped BlobStore.
type Store struct {
	client *storage.Client
	bucket string
}

// New opens a storage client using Application Default Credentials.
// STORAGE_EMULATOR_HOST is honoured by the client library.
func New(ctx context.Context, bucket string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

func (s *Store) handle(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(name)
}

// List pages through objects under prefix. GCS returns names in
// lexicographic order.
func (s *Store) List(ctx context.Context, prefix string) iter.Seq2[domain.BlobRef, error] {
	return func(yield func(domain.BlobRef, error) bool) {
		q := &storage.Query{Prefix: prefix}
		if err := q.SetAttrSelection([]string{"Name", "Size", "Updated"}); err != nil {
			yield(domain.BlobRef{}, err)
			return
		}

		it := s.client.Bucket(s.bucket).Objects(ctx, q)
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(domain.BlobRef{}, fmt.Errorf("list gs://%s/%s: %w", s.bucket, prefix, err))
				return
			}
			if !yield(domain.BlobRef{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated}, nil) {
				return
			}
		}
	}
}

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := s.handle(name).NewReader(ctx)
	if err != nil {
		return nil, mapErr("read "+name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *Store) Upload(ctx context.Context, name string, data []byte) error {
	w := s.handle(name).NewWriter(ctx)
	w.ContentType = contentTypeJSON

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// Rename copies ref to newName then deletes the source. The copy only
// succeeds when newName does not exist yet; a failed precondition means an
// earlier attempt already copied it, so the source is still removed.
func (s *Store) Rename(ctx context.Context, ref domain.BlobRef, newName string) error {
	src := s.handle(ref.Name)
	dst := s.handle(newName).If(storage.Conditions{DoesNotExist: true})

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil && !isPreconditionFailed(err) {
		return mapErr("copy "+ref.Name, err)
	}
	if err := src.Delete(ctx); err != nil {
		return mapErr("delete "+ref.Name, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.handle(name).Delete(ctx); err != nil {
		return mapErr("delete "+name, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.handle(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) URI(name string) string {
	return "gs://" + s.bucket + "/" + name
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// mapErr translates missing-object errors to domain.ErrBlobNotFound.
func mapErr(op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", op, domain.ErrBlobNotFound)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, domain.ErrBlobNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
