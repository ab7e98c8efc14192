package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket paging two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	listErr error
	headErr error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	src, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	_, key, _ := strings.Cut(src, "/")
	data, ok := f.objects[key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestStore_Ping(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	s := NewWithClient(client, "weather-lake")

	require.NoError(t, s.Ping(ctx))

	client.headErr = &types.NotFound{}
	err := s.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weather-lake")
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewWithClient(newFakeS3(), "weather-lake")

	name := "weather_data/St. John's/2025-04-03T10:00:00.000000.json"
	require.NoError(t, s.Upload(ctx, name, []byte(`{"a":1}`)))

	data, err := s.Read(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	ok, err := s.Exists(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Rename(ctx, domain.BlobRef{Name: name}, "processed/"+name))
	ok, _ = s.Exists(ctx, name)
	assert.False(t, ok)
	ok, _ = s.Exists(ctx, "processed/"+name)
	assert.True(t, ok)

	assert.Equal(t, "s3://weather-lake/"+name, s.URI(name))
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewWithClient(newFakeS3(), "weather-lake")

	_, err := s.Read(ctx, "missing.json")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	err = s.Rename(ctx, domain.BlobRef{Name: "missing.json"}, "processed/missing.json")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)
}

func TestStore_ListPaginates(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewWithClient(fake, "weather-lake")
	for _, n := range []string{"p/London/3.json", "p/London/1.json", "p/London/2.json", "p/Paris/1.json", "p/London/4.json", "p/London/5.json"} {
		require.NoError(t, s.Upload(ctx, n, []byte("{}")))
	}

	var names []string
	for ref, err := range s.List(ctx, "p/London/") {
		require.NoError(t, err)
		names = append(names, ref.Name)
	}
	assert.Equal(t, []string{"p/London/1.json", "p/London/2.json", "p/London/3.json", "p/London/4.json", "p/London/5.json"}, names)
}

func TestStore_ListError(t *testing.T) {
	fake := newFakeS3()
	fake.listErr = errors.New("access denied")
	s := NewWithClient(fake, "weather-lake")

	var errs []error
	for _, err := range s.List(context.Background(), "p/") {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "access denied")
}

func TestCopySource(t *testing.T) {
	assert.Equal(t, "lake/weather_data/New%20York/x.json", copySource("lake", "weather_data/New York/x.json"))
}
