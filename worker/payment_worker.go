// Package worker drains the ledger queue into the database.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voyage-payment-api/models"
	"voyage-payment-api/queue"
	"voyage-payment-api/security"
)

const (
	dequeueTimeout  = 5 * time.Second
	jobTimeout      = 30 * time.Second
	delayedInterval = 5 * time.Second
	errorBackoff    = time.Second
)

type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	CompleteJob(ctx context.Context, job *queue.Job) error
	FailJob(ctx context.Context, job *queue.Job, cause error) error
	ProcessDelayedJobs(ctx context.Context) (int, error)
}

type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, entry models.LedgerEntry) error
}

type Worker struct {
	jobs     JobSource
	recorder TransactionRecorder
	audit    *security.AuditLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewWorker(jobs JobSource, recorder TransactionRecorder, audit *security.AuditLogger) *Worker {
	if audit == nil {
		audit = security.NewAuditLogger(nil)
	}
	return &Worker{jobs: jobs, recorder: recorder, audit: audit}
}

// Start runs concurrency consumers plus one goroutine that promotes due
// retries. It is a no-op if the worker is already running.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i)
	}
	w.wg.Add(1)
	go w.promoteDelayed(ctx)

	w.audit.Info("ledger worker started", map[string]any{"concurrency": concurrency})
}

// Stop cancels the consumers and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.audit.Info("ledger worker stopped", nil)
}

func (w *Worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for ctx.Err() == nil {
		job, err := w.jobs.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.audit.Warn("error dequeuing job", map[string]any{"workerId": workerID, "error": err})
			sleep(ctx, errorBackoff)
			continue
		}
		if job == nil {
			continue
		}
		w.handle(job)
	}
}

// handle runs one job to completion even if the worker is stopping, so a
// dequeued job is never left on the processing list.
func (w *Worker) handle(job *queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := w.processJob(ctx, job); err != nil {
		w.audit.Warn("job failed", map[string]any{"jobId": job.ID, "type": string(job.Type), "error": err})
		if failErr := w.jobs.FailJob(ctx, job, err); failErr != nil {
			w.audit.Error("error marking job as failed", map[string]any{"jobId": job.ID, "error": failErr})
		}
		return
	}
	if err := w.jobs.CompleteJob(ctx, job); err != nil {
		w.audit.Error("error marking job as complete", map[string]any{"jobId": job.ID, "error": err})
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecordTransaction:
		var entry models.LedgerEntry
		if err := json.Unmarshal(job.Payload, &entry); err != nil {
			return fmt.Errorf("invalid ledger entry: %w", err)
		}
		if entry.TransactionID == "" {
			return fmt.Errorf("ledger entry without transaction id")
		}
		return w.recorder.RecordTransaction(ctx, entry)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *Worker) promoteDelayed(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(delayedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.jobs.ProcessDelayedJobs(ctx); err != nil && ctx.Err() == nil {
				w.audit.Warn("error promoting delayed jobs", map[string]any{"error": err})
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
