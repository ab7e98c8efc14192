package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	msg kafkago.Message
	err error
}

// fakeReader replays results, then blocks until the context is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	results   []fetchResult
	committed []int64
	drained   chan struct{}
}

func newFakeReader(results ...fetchResult) *fakeReader {
	return &fakeReader{results: results, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.results) == 0 {
		r.mu.Unlock()
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	res := r.results[0]
	r.results = r.results[1:]
	r.mu.Unlock()
	return res.msg, res.err
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeDispatcher struct {
	mu   sync.Mutex
	cmds []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, cmd string) (domain.StageReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)

	stage, err := domain.ParseStage(cmd)
	if err != nil {
		return domain.StageReport{}, err
	}
	report := domain.StageReport{Stage: stage}
	if stage == domain.StageReconcile {
		report.Err = errors.New("warehouse unavailable")
	}
	return report, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumer_Run_DispatchesAndCommits(t *testing.T) {
	reader := newFakeReader(
		fetchResult{msg: kafkago.Message{Value: []byte("run-get-data\n"), Offset: 1}},
		fetchResult{err: errors.New("broker not available")},
		fetchResult{msg: kafkago.Message{Value: []byte("run-bogus"), Offset: 2}},
		fetchResult{msg: kafkago.Message{Value: []byte("run-reconcile"), Offset: 3}},
	)
	dispatcher := &fakeDispatcher{}
	metrics := observability.NewMetricsForTesting()
	c := &Consumer{reader: reader, dispatcher: dispatcher, logger: discardLogger(), metrics: metrics}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-ctx.Done():
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"run-get-data", "run-bogus", "run-reconcile"}, dispatcher.cmds)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed, "offsets committed even for rejected or failed triggers")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Triggers.WithLabelValues("kafka", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Triggers.WithLabelValues("kafka", "rejected")))
}

func TestConsumer_Run_StopsOnCancelledContext(t *testing.T) {
	c := &Consumer{reader: newFakeReader(), dispatcher: &fakeDispatcher{}, logger: discardLogger(), metrics: observability.NewMetricsForTesting()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Run(ctx))
}

func TestTriggerMessage(t *testing.T) {
	now := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)
	msg := triggerMessage("run-load-data", "cron", now)

	assert.Equal(t, []byte("run-load-data"), msg.Key)
	assert.Equal(t, []byte("run-load-data"), msg.Value)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "source", msg.Headers[0].Key)
	assert.Equal(t, []byte("cron"), msg.Headers[0].Value)
	assert.Equal(t, "emitted_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

// failingReader fails every fetch and counts the attempts.
type failingReader struct {
	mu    sync.Mutex
	calls int
}

func (r *failingReader) FetchMessage(context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return kafkago.Message{}, errors.New("broker not available")
}

func (r *failingReader) CommitMessages(context.Context, ...kafkago.Message) error { return nil }
func (r *failingReader) Close() error                                          { return nil }

func TestConsumer_Run_BacksOffAndStopsOnCancel(t *testing.T) {
	reader := &failingReader{}
	c := &Consumer{reader: reader, dispatcher: &fakeDispatcher{}, logger: discardLogger(), metrics: observability.NewMetricsForTesting()}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, c.Run(ctx))
	assert.Less(t, time.Since(start), 2*time.Second, "backoff sleep returns on cancellation")

	reader.mu.Lock()
	defer reader.mu.Unlock()
	// 200ms then 400ms backoff: at most a few attempts fit in 500ms.
	assert.GreaterOrEqual(t, reader.calls, 2)
	assert.LessOrEqual(t, reader.calls, 3)
}
