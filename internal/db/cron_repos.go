package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/klauspost/compress/zstd"

	"yardlink/internal/types"
)

// ============================================================
// JobLockRepository
// ============================================================

// JobLockRepository provides distributed locking via the job_locks
// table. Cron entrypoints acquire a per-task lock before running so a
// retried or overlapping Lambda invocation does not process the same
// window twice. The INSERT ... ON CONFLICT DO UPDATE form makes
// acquisition a single atomic statement.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository backed by the
// given database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to insert a lock row. Returns true if acquired,
// false if the lock already exists and has not expired. The lockID is
// typically "task_type:window" (e.g. "autopay_generate:2026-08-31").
//
// Timestamps are computed in Go rather than with SQL interval
// arithmetic, since Go's duration string is not a valid PG interval.
// If the existing row has expired the UPDATE reclaims it; an active
// row leaves zero rows affected.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ============================================================
// CronHistoryRepository
// ============================================================

// CronHistoryRepository provides data access for the job_history
// table. Every scheduled run records a row for operational visibility:
// when it ran, how many items it touched, and a compressed metadata
// blob with the run's detailed outcome.
type CronHistoryRepository struct {
	db      DBTX
	encoder *zstd.Encoder
}

// NewCronHistoryRepository creates a new CronHistoryRepository backed
// by the given database connection (pool or transaction).
func NewCronHistoryRepository(db DBTX) *CronHistoryRepository {
	// EncodeAll with a shared encoder is safe for concurrent use.
	enc, _ := zstd.NewWriter(nil)
	return &CronHistoryRepository{db: db, encoder: enc}
}

// Start inserts a new job_history row with status 'running' and
// returns the auto-generated BIGSERIAL ID. The caller passes this ID
// to Finish with the outcome.
func (r *CronHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, started_at, status)
		 VALUES ($1, NOW(), 'running')
		 RETURNING id`,
		jobType,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start cron history entry", err)
	}
	return id, nil
}

// Finish updates the job_history row with the final status, item
// count, optional error message, and the run's metadata. The metadata
// value is JSON-encoded and zstd-compressed before storage; nil
// metadata stores NULL.
func (r *CronHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error, metadata any) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	var blob []byte
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode cron run metadata", err)
		}
		blob = r.encoder.EncodeAll(raw, nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, items_count = $3, error = $4, metadata = $5
		 WHERE id = $1`,
		id,
		status,
		items,
		errMsg,
		blob,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish cron history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "cron history entry not found", nil)
	}
	return nil
}

// DecodeMetadata decompresses and unmarshals a stored metadata blob
// into dst. Used by operational tooling and tests.
func DecodeMetadata(blob []byte, dst any) error {
	if len(blob) == 0 {
		return nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create metadata decoder", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decompress cron run metadata", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode cron run metadata", err)
	}
	return nil
}
