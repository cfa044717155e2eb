// Package broker provides the Redis-backed task queue and event publisher.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

var metrics = struct {
	enqueued  *prometheus.CounterVec
	processed *prometheus.CounterVec
}{
	enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "queue",
		Name:      "enqueued_total",
		Help:      `The cumulative number of jobs pushed to the queue, by kind.`,
	}, []string{"kind"}),
	processed: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "queue",
		Name:      "processed_total",
		Help: `The cumulative number of jobs taken off the queue, by kind and outcome.

Outcome is one of ok, retried, dead or malformed.`,
	}, []string{"kind", "outcome"}),
}

// NewClient opens a Redis client and checks the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Queue implements ports.TaskQueue on Redis lists.
// Jobs are sharded by person so that one person's jobs are consumed in order
// by a single worker goroutine.
type Queue struct {
	client      redis.UniversalClient
	key         string
	shards      int
	maxAttempts int
}

// NewQueue creates a new Queue.
func NewQueue(client redis.UniversalClient, cfg config.RedisConfig) *Queue {
	key := cfg.QueueKey
	if key == "" {
		key = "kin:jobs"
	}
	shards := cfg.Shards
	if shards <= 0 {
		shards = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Queue{
		client:      client,
		key:         key,
		shards:      shards,
		maxAttempts: maxAttempts,
	}
}

// Enqueue pushes the job onto its person's shard.
func (q *Queue) Enqueue(ctx context.Context, job entities.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := q.client.LPush(ctx, q.shardKey(job.PersonID), data).Err(); err != nil {
		return fmt.Errorf("enqueuing %s job: %w", job.Kind, err)
	}
	metrics.enqueued.WithLabelValues(string(job.Kind)).Inc()
	return nil
}

// ShardKey returns the list key holding jobs for personID.
func (q *Queue) ShardKey(personID string) string {
	return q.shardKey(personID)
}

func (q *Queue) shardKey(personID string) string {
	shard := xxhash.Sum64String(personID) % uint64(q.shards)
	return fmt.Sprintf("%s:%d", q.key, shard)
}

// DeadKey returns the list key holding jobs that ran out of attempts.
func (q *Queue) DeadKey() string {
	return q.key + ":dead"
}

// processingKey returns the list holding jobs a consumer of shardKey has taken
// but not finished.
func processingKey(shardKey string) string {
	return shardKey + ":processing"
}

func (q *Queue) shardKeys() []string {
	keys := make([]string, q.shards)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s:%d", q.key, i)
	}
	return keys
}

// Len returns the number of jobs waiting across all shards.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	var total int64
	for _, key := range q.shardKeys() {
		n, err := q.client.LLen(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("reading queue length: %w", err)
		}
		total += n
	}
	return total, nil
}

// Handler runs one job.
type Handler interface {
	Handle(ctx context.Context, job entities.Job) error
}

// Worker consumes jobs from every shard of a Queue.
type Worker struct {
	queue   *Queue
	handler Handler
	poll    time.Duration
	log     *logrus.Entry
}

// NewWorker creates a new Worker.
func NewWorker(queue *Queue, handler Handler, log *logrus.Entry) *Worker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		queue:   queue,
		handler: handler,
		poll:    time.Second,
		log:     log.WithField("component", "worker"),
	}
}

// Run blocks until ctx is cancelled, running one consumer per shard. Jobs left
// in flight by a previous run are put back first.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithField("shards", w.queue.shards).Info("Worker started")
	if n, err := w.Recover(ctx); err != nil {
		w.log.WithError(err).Warn("Failed to recover in-flight jobs")
	} else if n > 0 {
		w.log.WithField("jobs", n).Info("Recovered in-flight jobs")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, key := range w.queue.shardKeys() {
		g.Go(func() error {
			return w.consume(ctx, key)
		})
	}
	err := g.Wait()
	w.log.Info("Worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Recover moves jobs stranded in the processing lists back onto their shards,
// oldest at the consuming end. It returns the number of jobs moved.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	moved := 0
	for _, key := range w.queue.shardKeys() {
		for {
			err := w.queue.client.LMove(ctx, processingKey(key), key, "LEFT", "RIGHT").Err()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return moved, fmt.Errorf("recovering %s: %w", key, err)
			}
			moved++
		}
	}
	return moved, nil
}

func (w *Worker) consume(ctx context.Context, key string) error {
	processing := processingKey(key)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := w.queue.client.BLMove(ctx, key, processing, "RIGHT", "LEFT", w.poll).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.WithError(err).WithField("key", key).Warn("Failed to take job")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.poll):
			}
			continue
		}
		w.process(ctx, processing, data)
	}
}

// ProcessOne takes and runs a single job from personID's shard without blocking.
// It reports whether a job was found.
func (w *Worker) ProcessOne(ctx context.Context, personID string) (bool, error) {
	key := w.queue.shardKey(personID)
	processing := processingKey(key)
	data, err := w.queue.client.LMove(ctx, key, processing, "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("taking job: %w", err)
	}
	w.process(ctx, processing, data)
	return true, nil
}

// process runs one job taken into processing. The job leaves the processing
// list only after it is done, requeued or parked, so a crash in between leaves
// it for Recover.
func (w *Worker) process(ctx context.Context, processing, data string) {
	// Bookkeeping must land even when ctx was cancelled mid-job.
	bg := context.WithoutCancel(ctx)
	release := true
	defer func() {
		if !release {
			return
		}
		if err := w.queue.client.LRem(bg, processing, 1, data).Err(); err != nil {
			w.log.WithError(err).WithField("key", processing).Error("Failed to release job")
		}
	}()

	var job entities.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		metrics.processed.WithLabelValues("", "malformed").Inc()
		w.log.WithError(err).Error("Dropping malformed job")
		return
	}

	log := w.log.WithFields(logrus.Fields{
		"kind":    job.Kind,
		"person":  job.PersonID,
		"attempt": job.Attempt,
	})

	err := w.handler.Handle(ctx, job)
	if err == nil {
		metrics.processed.WithLabelValues(string(job.Kind), "ok").Inc()
		log.Debug("Job done")
		return
	}

	if ctx.Err() != nil {
		// Interrupted by shutdown; the attempt does not count.
		metrics.processed.WithLabelValues(string(job.Kind), "retried").Inc()
		log.WithError(err).Info("Job interrupted, requeueing")
		if qErr := w.queue.Enqueue(bg, job); qErr != nil {
			log.WithError(qErr).Error("Failed to requeue job, left in processing")
			release = false
		}
		return
	}

	job.Attempt++
	if job.Attempt >= w.queue.maxAttempts {
		metrics.processed.WithLabelValues(string(job.Kind), "dead").Inc()
		log.WithError(err).Error("Job out of attempts")
		if dead, mErr := json.Marshal(job); mErr == nil {
			if pErr := w.queue.client.LPush(bg, w.queue.DeadKey(), dead).Err(); pErr != nil {
				log.WithError(pErr).Error("Failed to park dead job, left in processing")
				release = false
			}
		}
		return
	}

	metrics.processed.WithLabelValues(string(job.Kind), "retried").Inc()
	log.WithError(err).Warn("Job failed, requeueing")
	if qErr := w.queue.Enqueue(bg, job); qErr != nil {
		log.WithError(qErr).Error("Failed to requeue job, left in processing")
		release = false
	}
}
