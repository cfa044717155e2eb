package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

var (
	_ ports.TaskQueue      = (*Queue)(nil)
	_ ports.EventPublisher = (*Publisher)(nil)
	_ ports.EventPublisher = (*LogPublisher)(nil)
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// recordingHandler records jobs and fails while failures > 0.
type recordingHandler struct {
	mu       sync.Mutex
	jobs     []entities.Job
	failures int
	done     chan struct{}
}

func (h *recordingHandler) Handle(_ context.Context, job entities.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	if h.done != nil {
		select {
		case h.done <- struct{}{}:
		default:
		}
	}
	if h.failures > 0 {
		h.failures--
		return errors.New("transient")
	}
	return nil
}

type handlerFunc func(ctx context.Context, job entities.Job) error

func (f handlerFunc) Handle(ctx context.Context, job entities.Job) error { return f(ctx, job) }

func (h *recordingHandler) seen() []entities.Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]entities.Job(nil), h.jobs...)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewClient(context.Background(), config.RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis")
}

func TestQueue_ShardsByPerson(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	q := NewQueue(client, config.RedisConfig{QueueKey: "kin:jobs", Shards: 4})

	jobs := []entities.Job{
		{Kind: entities.JobDeduce, PersonID: "amina", EdgeID: "e1"},
		{Kind: entities.JobSuggest, PersonID: "amina"},
		{Kind: entities.JobSuggest, PersonID: "ahmed"},
	}
	for _, job := range jobs {
		require.NoError(t, q.Enqueue(ctx, job))
	}

	assert.Equal(t, q.ShardKey("amina"), q.ShardKey("amina"))
	assert.Regexp(t, `^kin:jobs:[0-3]$`, q.ShardKey("ahmed"))

	list, err := mr.List(q.ShardKey("amina"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(list), 2)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestWorker_ProcessOne(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	q := NewQueue(client, config.RedisConfig{Shards: 2, MaxAttempts: 3})
	h := &recordingHandler{}
	w := NewWorker(q, h, quietLogger())

	found, err := w.ProcessOne(ctx, "amina")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, q.Enqueue(ctx, entities.Job{Kind: entities.JobDeduce, PersonID: "amina", EdgeID: "e1"}))
	require.NoError(t, q.Enqueue(ctx, entities.Job{Kind: entities.JobSuggest, PersonID: "amina"}))

	for i := 0; i < 2; i++ {
		found, err = w.ProcessOne(ctx, "amina")
		require.NoError(t, err)
		assert.True(t, found)
	}

	inFlight, err := client.LLen(ctx, processingKey(q.ShardKey("amina"))).Result()
	require.NoError(t, err)
	assert.Zero(t, inFlight, "finished jobs leave the processing list")

	seen := h.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, entities.JobDeduce, seen[0].Kind, "jobs of one person run in order")
	assert.Equal(t, "e1", seen[0].EdgeID)
	assert.Equal(t, entities.JobSuggest, seen[1].Kind)
}

func TestWorker_RetriesThenParksDeadJobs(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	q := NewQueue(client, config.RedisConfig{Shards: 1, MaxAttempts: 2})
	h := &recordingHandler{failures: 10}
	w := NewWorker(q, h, quietLogger())

	require.NoError(t, q.Enqueue(ctx, entities.Job{Kind: entities.JobSuggest, PersonID: "amina"}))

	_, err := w.ProcessOne(ctx, "amina")
	require.NoError(t, err)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "first failure requeues")

	_, err = w.ProcessOne(ctx, "amina")
	require.NoError(t, err)
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dead, err := mr.List(q.DeadKey())
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var job entities.Job
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &job))
	assert.Equal(t, 2, job.Attempt)

	seen := h.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, 0, seen[0].Attempt)
	assert.Equal(t, 1, seen[1].Attempt)
}

func TestWorker_JobInterruptedByShutdownIsRequeued(t *testing.T) {
	mr, client := setupRedis(t)
	q := NewQueue(client, config.RedisConfig{Shards: 1, MaxAttempts: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(q, handlerFunc(func(ctx context.Context, _ entities.Job) error {
		cancel()
		return ctx.Err()
	}), quietLogger())

	require.NoError(t, q.Enqueue(ctx, entities.Job{Kind: entities.JobDeduce, PersonID: "amina", EdgeID: "e1"}))
	found, err := w.ProcessOne(ctx, "amina")
	require.NoError(t, err)
	assert.True(t, found)

	queued, err := mr.List(q.ShardKey("amina"))
	require.NoError(t, err)
	require.Len(t, queued, 1)
	var job entities.Job
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &job))
	assert.Equal(t, "e1", job.EdgeID)
	assert.Zero(t, job.Attempt, "an interrupted run is not a failed attempt")

	assert.False(t, mr.Exists(q.DeadKey()))
	n, err := client.LLen(context.Background(), processingKey(q.ShardKey("amina"))).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorker_RecoversStrandedJobs(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	q := NewQueue(client, config.RedisConfig{Shards: 1})
	h := &recordingHandler{}
	w := NewWorker(q, h, quietLogger())

	// A consumer died after taking two jobs; the older one sits at the right.
	processing := processingKey(q.ShardKey("amina"))
	for _, edge := range []string{"older", "newer"} {
		data, err := json.Marshal(entities.Job{Kind: entities.JobDeduce, PersonID: "amina", EdgeID: edge})
		require.NoError(t, err)
		require.NoError(t, client.LPush(ctx, processing, data).Err())
	}

	n, err := w.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	left, err := client.LLen(ctx, processing).Result()
	require.NoError(t, err)
	assert.Zero(t, left)

	for range 2 {
		_, err := w.ProcessOne(ctx, "amina")
		require.NoError(t, err)
	}
	seen := h.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, "older", seen[0].EdgeID)
	assert.Equal(t, "newer", seen[1].EdgeID)
}

func TestWorker_DropsMalformedJobs(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	q := NewQueue(client, config.RedisConfig{Shards: 1})
	h := &recordingHandler{}
	w := NewWorker(q, h, quietLogger())

	require.NoError(t, client.LPush(ctx, q.ShardKey("x"), "not json").Err())
	found, err := w.ProcessOne(ctx, "x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, h.seen())

	n, err := client.LLen(ctx, processingKey(q.ShardKey("x"))).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorker_Run(t *testing.T) {
	_, client := setupRedis(t)
	q := NewQueue(client, config.RedisConfig{Shards: 2})
	h := &recordingHandler{done: make(chan struct{}, 1)}
	w := NewWorker(q, h, quietLogger())
	w.poll = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(context.Background(), entities.Job{Kind: entities.JobSuggest, PersonID: "ahmed"}))

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not consumed")
	}

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Len(t, h.seen(), 1)
}

func TestPublisher(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	p := NewPublisher(client, "")
	assert.Equal(t, "kin:events", p.Channel())

	sub := client.Subscribe(ctx, p.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(ctx, entities.RelationshipAccepted("ahmed", "amina", entities.RelationFather, at)))

	select {
	case msg := <-sub.Channel():
		var event entities.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, entities.EventRelationshipAccepted, event.Type)
		assert.Equal(t, entities.RelationFather, event.Code)
		assert.Equal(t, "amina", event.ObjectID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	p := NewLogPublisher(logrus.NewEntry(l))
	require.NoError(t, p.Publish(context.Background(), entities.SuggestionCreated("sami", "nour", time.Now())))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "suggestion_created", line["type"])
	assert.Equal(t, "sami", line["subject"])
	assert.Equal(t, "events", line["component"])
	assert.NotContains(t, line, "code")
}
