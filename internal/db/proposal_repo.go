package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"yardlink/internal/types"
)

// ProposalRepository provides data access for the proposals table. The
// UNIQUE (job_id, provider_id) constraint enforces one proposal per
// provider per job; the repository translates violations instead of
// pre-checking.
type ProposalRepository struct {
	db DBTX
}

// NewProposalRepository creates a new ProposalRepository backed by the
// given database connection (pool or transaction).
func NewProposalRepository(db DBTX) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a proposal. A duplicate (job_id, provider_id) pair is
// reported as ErrCodeConflictDuplicate.
func (r *ProposalRepository) Create(ctx context.Context, p *types.Proposal) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO proposals (id, job_id, provider_id, message, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		p.ID, p.JobID, p.ProviderID, nilIfEmpty(p.Message),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.NewAppError(types.ErrCodeConflictDuplicate, "proposal already submitted for this job", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create proposal", err)
	}
	return nil
}

// ListForJob returns the proposals on a job, oldest first, so the
// customer sees interest in arrival order.
func (r *ProposalRepository) ListForJob(ctx context.Context, jobID string) ([]*types.Proposal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, provider_id, COALESCE(message, ''), created_at
		 FROM proposals
		 WHERE job_id = $1
		 ORDER BY created_at ASC`,
		jobID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list proposals", err)
	}
	defer rows.Close()

	var results []*types.Proposal
	for rows.Next() {
		var p types.Proposal
		if err := rows.Scan(&p.ID, &p.JobID, &p.ProviderID, &p.Message, &p.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan proposal row", err)
		}
		results = append(results, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating proposal rows", err)
	}
	return results, nil
}
