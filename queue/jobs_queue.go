package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"voyage-payment-api/security"
)

type JobType string

const (
	JobTypeRecordTransaction JobType = "record_transaction"
)

const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = 15 * time.Second
)

type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`

	// raw is the exact list member, needed to remove it from processing
	raw string
}

type Queue struct {
	client     *redis.Client
	queueName  string
	processing string
	delayed    string
	failed     string
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
	audit      *security.AuditLogger
}

type Option func(*Queue)

func WithRetries(maxRetries int, baseDelay time.Duration) Option {
	return func(q *Queue) {
		q.maxRetries = maxRetries
		q.retryDelay = baseDelay
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithAudit(a *security.AuditLogger) Option {
	return func(q *Queue) { q.audit = a }
}

func NewQueue(client *redis.Client, queueName string, opts ...Option) *Queue {
	q := &Queue{
		client:     client,
		queueName:  queueName,
		processing: queueName + ":processing",
		delayed:    queueName + ":delayed",
		failed:     queueName + ":failed",
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		audit:      security.NewAuditLogger(nil),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := q.now()
	job := Job{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		Type:      jobType,
		Payload:   data,
		CreatedAt: now,
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}

	q.audit.Info("job enqueued", map[string]any{"jobId": job.ID, "type": string(job.Type)})
	return nil
}

// Dequeue waits up to timeout for a job and parks it on the processing
// list. It returns nil, nil when nothing arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, errors.New("unexpected BLPOP result format")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	job.raw = result[1]

	if err := q.client.RPush(ctx, q.processing, job.raw).Err(); err != nil {
		q.audit.Warn("failed to move job to processing list", map[string]any{"jobId": job.ID, "error": err})
	}
	return &job, nil
}

func (q *Queue) CompleteJob(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("failed to remove job from processing queue: %w", err)
	}
	return nil
}

// FailJob schedules job for another attempt with exponential backoff, or
// moves it to the failed list once its retries are exhausted.
func (q *Queue) FailJob(ctx context.Context, job *Job, cause error) error {
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		q.audit.Warn("failed to remove job from processing list", map[string]any{"jobId": job.ID, "error": err})
	}

	job.RetryCount++
	job.LastError = security.RedactPANs(cause.Error())

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.RetryCount <= q.maxRetries {
		delay := q.retryDelay * time.Duration(1<<(job.RetryCount-1))
		retryAt := q.now().Add(delay)

		err := q.client.ZAdd(ctx, q.delayed, &redis.Z{
			Score:  float64(retryAt.Unix()),
			Member: jobJSON,
		}).Err()
		if err == nil {
			q.audit.Warn("job scheduled for retry", map[string]any{
				"jobId":   job.ID,
				"type":    string(job.Type),
				"attempt": job.RetryCount,
				"delayMs": delay.Milliseconds(),
			})
			return nil
		}
		q.audit.Warn("failed to schedule retry, moving job to failed list", map[string]any{"jobId": job.ID, "error": err})
	}

	if err := q.client.RPush(ctx, q.failed, jobJSON).Err(); err != nil {
		return fmt.Errorf("failed to push job to failed queue: %w", err)
	}
	q.audit.Error("job moved to failed list", map[string]any{
		"jobId":   job.ID,
		"type":    string(job.Type),
		"retries": job.RetryCount,
	})
	return nil
}

// ProcessDelayedJobs moves every retry whose time has come back onto the
// main list and reports how many it moved.
func (q *Queue) ProcessDelayedJobs(ctx context.Context) (int, error) {
	jobs, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get delayed jobs: %w", err)
	}

	moved := 0
	for _, jobJSON := range jobs {
		// only the caller that removes it may requeue it
		removed, err := q.client.ZRem(ctx, q.delayed, jobJSON).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
			q.audit.Warn("failed to move delayed job to main queue", map[string]any{"error": err})
			continue
		}
		moved++
	}
	return moved, nil
}

// Depths reports the length of the main, delayed and failed lists.
func (q *Queue) Depths(ctx context.Context) (pending, delayed, failed int64, err error) {
	if pending, err = q.client.LLen(ctx, q.queueName).Result(); err != nil {
		return
	}
	if delayed, err = q.client.ZCard(ctx, q.delayed).Result(); err != nil {
		return
	}
	failed, err = q.client.LLen(ctx, q.failed).Result()
	return
}
