package queue

import (
	"context"

	"voyage-payment-api/models"
)

// Ledger hands completed charges to the worker so the request path never
// waits on the database.
type Ledger struct {
	queue *Queue
}

func NewLedger(q *Queue) *Ledger {
	return &Ledger{queue: q}
}

func (l *Ledger) Record(ctx context.Context, entry models.LedgerEntry) error {
	return l.queue.Enqueue(ctx, JobTypeRecordTransaction, entry)
}
