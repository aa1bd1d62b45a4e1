package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prompt-blueprint-api/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type recorder struct {
	mu    sync.Mutex
	msgs  []*Message
	err   error
	calls int
}

func (r *recorder) handle(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) snapshot() (int, []*Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]*Message(nil), r.msgs...)
}

func testConsumer(rdb *redis.Client, retryLimit int) *Consumer {
	return NewConsumer(rdb, ConsumerConfig{
		Stream:       StreamPromptJobs,
		Group:        ConsumerGroupPromptWorker,
		ConsumerName: "worker-1",
		BlockTimeout: 20 * time.Millisecond,
		RetryLimit:   retryLimit,
		Backoff:      BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2},
	})
}

func TestProducerConsumer_RoundTrip(t *testing.T) {
	rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	consumer := testConsumer(rdb, 3)
	consumer.RegisterHandler(MessageTypePromptJob, rec.handle)
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	producer := NewProducer(rdb, 0)
	pubCtx := logger.WithContext(ctx, logger.RequestIDKey, "req-1")
	_, err := producer.PublishPromptJob(pubCtx, &PromptJobMessage{JobID: "job-1", Kind: "text", Prompt: "a fox"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, msgs := rec.snapshot()
		return len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, msgs := rec.snapshot()
	assert.Equal(t, "job-1", msgs[0].ID)
	assert.Equal(t, "req-1", msgs[0].GetMetadata("request_id"))
	assert.Equal(t, "text", msgs[0].GetMetadata("kind"))

	var job PromptJobMessage
	require.NoError(t, msgs[0].UnmarshalPayload(&job))
	assert.Equal(t, "a fox", job.Prompt)

	require.Eventually(t, func() bool {
		n, err := rdb.XPending(ctx, string(StreamPromptJobs), string(ConsumerGroupPromptWorker)).Result()
		return err == nil && n.Count == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConsumer_RetryThenDLQ(t *testing.T) {
	rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{err: errors.New("redis write failed")}
	consumer := testConsumer(rdb, 2)
	consumer.RegisterHandler(MessageTypePromptJob, rec.handle)
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	_, err := NewProducer(rdb, 0).PublishPromptJob(ctx, &PromptJobMessage{JobID: "job-2", Kind: "text"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := rdb.XLen(ctx, StreamPromptJobs.DLQStream()).Result()
		return err == nil && n == 1
	}, 3*time.Second, 20*time.Millisecond)

	calls, _ := rec.snapshot()
	assert.GreaterOrEqual(t, calls, 1)
}

func TestConsumer_UnknownTypeAcked(t *testing.T) {
	rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := testConsumer(rdb, 3)
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	_, err := NewProducer(rdb, 0).PublishHistoryRecorded(ctx, &HistoryRecordedMessage{HistoryID: "h1"})
	require.NoError(t, err)
	// 历史事件发往另一条流，任务流保持为空
	n, err := rdb.XLen(ctx, string(StreamPromptHistory)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	msg, err := NewMessage("m1", "unknown", map[string]string{})
	require.NoError(t, err)
	_, err = NewProducer(rdb, 0).Publish(ctx, StreamPromptJobs, msg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, err := rdb.XPending(ctx, string(StreamPromptJobs), string(ConsumerGroupPromptWorker)).Result()
		return err == nil && p.Count == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConsumer_StartTwice(t *testing.T) {
	rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := testConsumer(rdb, 3)
	require.NoError(t, consumer.Start(ctx))
	assert.Error(t, consumer.Start(ctx))
	consumer.Stop()
	consumer.Stop()
}

func TestBackoffConfig_CalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 4*time.Second, cfg.CalculateBackoff(2))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(10))
}
