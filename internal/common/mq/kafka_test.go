package mq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func newTestQueue(reader *fakeReader) *KafkaQueue {
	return &KafkaQueue{
		newReader: func(string, SubscribeOptions) messageReader { return reader },
	}
}

func gradeMessages(ids ...string) []kafka.Message {
	out := make([]kafka.Message, 0, len(ids))
	for i, id := range ids {
		out = append(out, toKafkaMessage("grading", &Message{ID: id, Body: []byte(id)}))
		out[i].Offset = int64(i)
	}
	return out
}

func TestConsumerCommitsOnlyAfterHandlerSuccess(t *testing.T) {
	reader := &fakeReader{pending: gradeMessages("m1")}
	q := newTestQueue(reader)

	handled := make(chan *Message, 1)
	require.NoError(t, q.SubscribeWithOptions(context.Background(), "grading", func(ctx context.Context, m *Message) error {
		assert.Equal(t, 0, reader.commits())
		handled <- m
		return nil
	}, nil))
	require.NoError(t, q.Start())

	select {
	case m := <-handled:
		require.Equal(t, "m1", m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	require.Eventually(t, func() bool { return reader.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, q.Stop())
	require.True(t, reader.closed)
}

func TestConsumerDeadLettersAfterRetries(t *testing.T) {
	reader := &fakeReader{pending: gradeMessages("m1")}
	q := newTestQueue(reader)

	var calls atomic.Int32
	require.NoError(t, q.SubscribeWithOptions(context.Background(), "grading", func(context.Context, *Message) error {
		calls.Add(1)
		return errors.New("boom")
	}, &SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetterTopic: "grading-dlq"}))

	var dlqTopic atomic.Value
	var dlqRetries atomic.Int32
	q.subscriptions[0].publish = func(_ context.Context, topic string, m *Message) error {
		dlqTopic.Store(topic)
		dlqRetries.Store(int32(m.RetryCount))
		return nil
	}
	require.NoError(t, q.Start())

	require.Eventually(t, func() bool { return reader.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, q.Stop())
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "grading-dlq", dlqTopic.Load())
	require.Equal(t, int32(3), dlqRetries.Load())
}

func TestConsumerUnlimitedRetryNeverCommitsOnStop(t *testing.T) {
	reader := &fakeReader{pending: gradeMessages("m1")}
	q := newTestQueue(reader)

	var calls atomic.Int32
	require.NoError(t, q.SubscribeWithOptions(context.Background(), "grading", func(context.Context, *Message) error {
		calls.Add(1)
		return errors.New("database down")
	}, &SubscribeOptions{MaxRetries: -1, RetryDelay: time.Millisecond, MaxRetryDelay: 2 * time.Millisecond}))
	require.NoError(t, q.Start())

	require.Eventually(t, func() bool { return calls.Load() >= 5 }, 2*time.Second, time.Millisecond)
	require.NoError(t, q.Stop())
	require.Equal(t, 0, reader.commits())
}

func TestConsumerPrefetchOneHandlesSequentially(t *testing.T) {
	reader := &fakeReader{pending: gradeMessages("m1", "m2", "m3")}
	q := newTestQueue(reader)

	var inFlight, maxInFlight atomic.Int32
	var order []string
	var mu sync.Mutex
	require.NoError(t, q.SubscribeWithOptions(context.Background(), "grading", func(_ context.Context, m *Message) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, m.ID)
		mu.Unlock()
		return nil
	}, &SubscribeOptions{PrefetchCount: 1}))
	require.NoError(t, q.Start())

	require.Eventually(t, func() bool { return reader.commits() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, q.Stop())
	require.Equal(t, int32(1), maxInFlight.Load())
	require.Equal(t, []string{"m1", "m2", "m3"}, order)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	opts := SubscribeOptions{RetryDelay: 100 * time.Millisecond, MaxRetryDelay: time.Second}
	opts.SetDefaults()
	require.Equal(t, 100*time.Millisecond, opts.backoff(1))
	require.Equal(t, 200*time.Millisecond, opts.backoff(2))
	require.Equal(t, 800*time.Millisecond, opts.backoff(4))
	require.Equal(t, time.Second, opts.backoff(5))
	require.Equal(t, time.Second, opts.backoff(50))
}

func TestMessageHeadersSurviveKafkaEncoding(t *testing.T) {
	in := &Message{ID: "id-1", Key: "42", Body: []byte(`{"question_submission_id":42}`), RetryCount: 2, MaxRetries: -1}
	in.SetHeader("trace_id", "t-1")

	out := fromKafkaMessage(toKafkaMessage("grading", in))
	require.Equal(t, "id-1", out.ID)
	require.Equal(t, "42", out.Key)
	require.Equal(t, in.Body, out.Body)
	require.Equal(t, 2, out.RetryCount)
	require.Equal(t, -1, out.MaxRetries)
	v, ok := out.GetHeader("trace_id")
	require.True(t, ok)
	require.Equal(t, "t-1", v)
	require.WithinDuration(t, in.Timestamp, out.Timestamp, time.Millisecond)
}

func TestTokenLimiterBlocksWhenExhausted(t *testing.T) {
	l := NewTokenLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, 0, l.Available())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	l.Release()
	require.Equal(t, 1, l.Available())
}
