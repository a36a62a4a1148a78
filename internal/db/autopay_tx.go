package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yardlink/internal/types"
)

// AutopayTxStore adapts a connection pool to the transactional
// interface the autopay scheduler fires cuts through. Each fired cut
// runs date advancement and job creation in one transaction so the
// pair is all-or-nothing.
type AutopayTxStore struct {
	pool *pgxpool.Pool
}

func NewAutopayTxStore(pool *pgxpool.Pool) *AutopayTxStore {
	return &AutopayTxStore{pool: pool}
}

// AutopayTx is one open transaction over the autopay and job tables.
type AutopayTx struct {
	tx      pgx.Tx
	autopay *AutopayRepository
	jobs    *JobRepository
}

// BeginTx opens a transaction and returns repositories bound to it.
func (s *AutopayTxStore) BeginTx(ctx context.Context) (*AutopayTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	return &AutopayTx{
		tx:      tx,
		autopay: NewAutopayRepository(tx),
		jobs:    NewJobRepository(tx),
	}, nil
}

// AdvanceDate performs the conditional cut-date advancement inside the
// transaction. See AutopayRepository.AdvanceDate.
func (t *AutopayTx) AdvanceDate(ctx context.Context, id string, slot int, firedDate, nextDate string) (bool, error) {
	return t.autopay.AdvanceDate(ctx, id, slot, firedDate, nextDate)
}

// CreateJob inserts the generated job inside the transaction.
func (t *AutopayTx) CreateJob(ctx context.Context, j *types.JobRequest) error {
	return t.jobs.Create(ctx, j)
}

// Commit commits the transaction.
func (t *AutopayTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// Rollback rolls back the transaction. Safe to call after Commit.
func (t *AutopayTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
