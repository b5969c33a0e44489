package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portal-hub/internal/job"
	"github.com/portal-hub/internal/metrics"
	"github.com/portal-hub/internal/retry"
	"github.com/portal-hub/internal/storage"
	"github.com/portal-hub/internal/types"
)

// captureScheduler keeps enqueued jobs so tests can run them by hand
type captureScheduler struct {
	mu   sync.Mutex
	jobs []*job.Job
	err  error
}

func (c *captureScheduler) Enqueue(j *job.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, j)
	return nil
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingRecorder) RecordAssistantReply(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

// flakyResponder fails a fixed number of times before answering
type flakyResponder struct {
	failures int
	calls    int
}

func (f *flakyResponder) Reply(ctx context.Context, message string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("upstream unavailable")
	}
	return "echo: " + message, nil
}

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestAssistantService_PostMessageSchedulesReply(t *testing.T) {
	store := storage.NewMemoryStore()
	scheduler := &captureScheduler{}
	recorder := &recordingRecorder{}
	svc := NewAssistantService(store, NewKeywordResponder(), scheduler, recorder,
		AssistantConfig{ReplyDelay: time.Second, Retry: fastRetry()}, testLogger())

	base := time.UnixMilli(1_700_000_000_000)
	svc.now = func() time.Time { return base }
	ctx := context.Background()

	msg, err := svc.PostMessage(ctx, 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)
	assert.Equal(t, types.SenderUser, msg.Sender)
	assert.Equal(t, base.UnixMilli(), msg.Timestamp)

	require.Len(t, scheduler.jobs, 1)
	reply := scheduler.jobs[0]
	assert.True(t, base.Add(time.Second).Equal(reply.RunAt))

	svc.now = func() time.Time { return base.Add(time.Second) }
	require.NoError(t, reply.Run(ctx))

	messages, err := svc.ListMessages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, types.SenderUser, messages[0].Sender)
	assert.Equal(t, types.SenderAI, messages[1].Sender)
	assert.Equal(t, "Hello there! How can I assist you today?", messages[1].Content)
	assert.Equal(t, base.Add(time.Second).UnixMilli(), messages[1].Timestamp)
	assert.Equal(t, []string{metrics.ReplyStored}, recorder.outcomes)
}

func TestAssistantService_PostMessageValidation(t *testing.T) {
	store := storage.NewMemoryStore()
	scheduler := &captureScheduler{}
	svc := NewAssistantService(store, NewKeywordResponder(), scheduler, nil, AssistantConfig{}, testLogger())

	_, err := svc.PostMessage(context.Background(), 0, "hello")
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, err))

	_, err = svc.PostMessage(context.Background(), 1, "")
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, err))

	assert.Equal(t, 0, store.Counts().Messages)
	assert.Empty(t, scheduler.jobs)
}

func TestAssistantService_ReplyNotScheduled(t *testing.T) {
	store := storage.NewMemoryStore()
	recorder := &recordingRecorder{}
	svc := NewAssistantService(store, NewKeywordResponder(), &captureScheduler{err: job.ErrQueueFull}, recorder,
		AssistantConfig{}, testLogger())

	msg, err := svc.PostMessage(context.Background(), 1, "hello")
	require.NoError(t, err, "the user message is kept even without a reply")
	assert.NotNil(t, msg)
	assert.Equal(t, 1, store.Counts().Messages)
	assert.Equal(t, []string{metrics.ReplyDropped}, recorder.outcomes)
}

func TestAssistantService_ReplyRetries(t *testing.T) {
	store := storage.NewMemoryStore()
	scheduler := &captureScheduler{}
	responder := &flakyResponder{failures: 2}
	svc := NewAssistantService(store, responder, scheduler, nil,
		AssistantConfig{Retry: fastRetry()}, testLogger())
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, 3, "ping")
	require.NoError(t, err)
	require.Len(t, scheduler.jobs, 1)
	require.NoError(t, scheduler.jobs[0].Run(ctx))

	assert.Equal(t, 3, responder.calls)
	messages, _ := svc.ListMessages(ctx, 3)
	require.Len(t, messages, 2)
	assert.Equal(t, "echo: ping", messages[1].Content)
}

func TestAssistantService_ReplyGivesUp(t *testing.T) {
	store := storage.NewMemoryStore()
	scheduler := &captureScheduler{}
	recorder := &recordingRecorder{}
	svc := NewAssistantService(store, &flakyResponder{failures: 10}, scheduler, recorder,
		AssistantConfig{Retry: fastRetry()}, testLogger())
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, 3, "ping")
	require.NoError(t, err)
	err = scheduler.jobs[0].Run(ctx)
	require.Error(t, err)
	assert.Equal(t, "RESPONDER_ERROR", errorCode(t, err))

	assert.Equal(t, 1, store.Counts().Messages, "no reply stored")
	assert.Equal(t, []string{metrics.ReplyFailed}, recorder.outcomes)
}

// cancellingResponder cancels the reply context and fails, as a shutdown mid-call would
type cancellingResponder struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingResponder) Reply(ctx context.Context, message string) (string, error) {
	c.calls++
	c.cancel()
	return "", ctx.Err()
}

func TestAssistantService_DefaultRetryPolicy(t *testing.T) {
	cfg := fastRetry()
	svc := NewAssistantService(storage.NewMemoryStore(), NewKeywordResponder(), &captureScheduler{}, nil,
		AssistantConfig{Retry: cfg}, testLogger())

	require.NotNil(t, svc.retry.ShouldRetry)
	assert.Nil(t, cfg.ShouldRetry, "caller config is not modified")
	assert.False(t, svc.retry.ShouldRetry(errors.New("x")))
	assert.Equal(t, cfg.MaxAttempts, svc.retry.MaxAttempts)
}

func TestAssistantService_ReplyCancelledNotRetried(t *testing.T) {
	store := storage.NewMemoryStore()
	scheduler := &captureScheduler{}
	recorder := &recordingRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	responder := &cancellingResponder{cancel: cancel}
	svc := NewAssistantService(store, responder, scheduler, recorder,
		AssistantConfig{Retry: fastRetry()}, testLogger())

	_, err := svc.PostMessage(context.Background(), 3, "ping")
	require.NoError(t, err)
	err = scheduler.jobs[0].Run(ctx)
	require.Error(t, err)

	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, err))
	assert.Equal(t, 1, responder.calls, "cancellation is not retried")
	assert.Equal(t, 1, store.Counts().Messages)
	assert.Equal(t, []string{metrics.ReplyDropped}, recorder.outcomes)
}

func TestAssistantService_ReplyAfterShutdownDropped(t *testing.T) {
	store := storage.NewMemoryStore()
	scheduler := &captureScheduler{}
	recorder := &recordingRecorder{}
	responder := &flakyResponder{}
	svc := NewAssistantService(store, responder, scheduler, recorder,
		AssistantConfig{Retry: fastRetry()}, testLogger())

	_, err := svc.PostMessage(context.Background(), 3, "ping")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, scheduler.jobs[0].Run(ctx))

	assert.Equal(t, 0, responder.calls)
	assert.Equal(t, 1, store.Counts().Messages, "no reply stored")
	assert.Equal(t, []string{metrics.ReplyDropped}, recorder.outcomes)
}

func TestAssistantService_WithReplyQueue(t *testing.T) {
	store := storage.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	queue := job.NewReplyQueue(job.QueueConfig{Workers: 2, Logger: testLogger()})
	require.NoError(t, queue.Start(context.Background()))
	defer func() { _ = queue.Stop() }()

	svc := NewAssistantService(store, NewKeywordResponder(), queue, m,
		AssistantConfig{ReplyDelay: 20 * time.Millisecond, Retry: fastRetry()}, testLogger())
	ctx := context.Background()

	_, err := svc.PostMessage(ctx, 5, "any games?")
	require.NoError(t, err)

	messages, _ := svc.ListMessages(ctx, 5)
	assert.Len(t, messages, 1, "reply is delayed")

	require.Eventually(t, func() bool {
		messages, _ := svc.ListMessages(ctx, 5)
		return len(messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	messages, _ = svc.ListMessages(ctx, 5)
	assert.Equal(t, types.SenderAI, messages[1].Sender)
	assert.GreaterOrEqual(t, messages[1].Timestamp, messages[0].Timestamp)
	// the outcome is recorded just after the reply is stored
	assert.Eventually(t, func() bool {
		count, err := testutil.GatherAndCount(reg, "portal_assistant_replies_total")
		return err == nil && count == 1
	}, time.Second, 5*time.Millisecond)
}
