package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"yardlink/internal/types"
)

// ProviderRepository provides data access for the three eligibility
// sub-resources keyed by provider id: ID verification, banking details,
// and the provider profile. Each is an independent admin-settable
// workflow; absence of a row reads as the pending/incomplete state
// rather than an error, so the gates stay read-only guards.
type ProviderRepository struct {
	db DBTX
}

// NewProviderRepository creates a new ProviderRepository backed by the
// given database connection (pool or transaction).
func NewProviderRepository(db DBTX) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// GetVerification reads the ID-verification record. A missing row is
// returned as status pending.
func (r *ProviderRepository) GetVerification(ctx context.Context, providerID string) (*types.ProviderVerification, error) {
	var v types.ProviderVerification
	err := r.db.QueryRow(ctx,
		`SELECT provider_id, status, reviewed_by, updated_at
		 FROM provider_verifications
		 WHERE provider_id = $1`,
		providerID,
	).Scan(&v.ProviderID, &v.Status, &v.ReviewedBy, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.ProviderVerification{
				ProviderID: providerID,
				Status:     types.VerificationPending,
			}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read provider verification", err)
	}
	return &v, nil
}

// SetVerificationStatus upserts the admin decision on ID verification.
func (r *ProviderRepository) SetVerificationStatus(ctx context.Context, providerID string, status types.VerificationStatus, reviewedBy string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO provider_verifications (provider_id, status, reviewed_by, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (provider_id) DO UPDATE
		   SET status = EXCLUDED.status,
		       reviewed_by = EXCLUDED.reviewed_by,
		       updated_at = NOW()`,
		providerID, status, nilIfEmpty(reviewedBy),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set provider verification status", err)
	}
	return nil
}

// GetBanking reads the banking-verification record. A missing row is
// returned as status pending.
func (r *ProviderRepository) GetBanking(ctx context.Context, providerID string) (*types.ProviderBankingDetails, error) {
	var b types.ProviderBankingDetails
	err := r.db.QueryRow(ctx,
		`SELECT provider_id, bank_name, account_number, status, updated_at
		 FROM provider_banking_details
		 WHERE provider_id = $1`,
		providerID,
	).Scan(&b.ProviderID, &b.BankName, &b.AccountNumber, &b.Status, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.ProviderBankingDetails{
				ProviderID: providerID,
				Status:     types.VerificationPending,
			}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read provider banking details", err)
	}
	return &b, nil
}

// UpsertBanking stores a provider's submitted banking details, resetting
// the workflow to pending: a changed account must be re-verified.
func (r *ProviderRepository) UpsertBanking(ctx context.Context, providerID string, bankName string, accountNumber types.SecretString) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO provider_banking_details (provider_id, bank_name, account_number, status, updated_at)
		 VALUES ($1, $2, $3, 'pending', NOW())
		 ON CONFLICT (provider_id) DO UPDATE
		   SET bank_name = EXCLUDED.bank_name,
		       account_number = EXCLUDED.account_number,
		       status = 'pending',
		       updated_at = NOW()`,
		providerID, bankName, accountNumber.Unmask(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert provider banking details", err)
	}
	return nil
}

// SetBankingStatus records the admin decision on banking verification.
func (r *ProviderRepository) SetBankingStatus(ctx context.Context, providerID string, status types.VerificationStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE provider_banking_details SET
			status = $1,
			updated_at = NOW()
		 WHERE provider_id = $2`,
		status, providerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set banking status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "no banking details on file for provider", nil)
	}
	return nil
}

// GetProfile reads the provider profile. A missing row is returned as
// an empty profile, which the completeness gate reads as incomplete.
func (r *ProviderRepository) GetProfile(ctx context.Context, providerID string) (*types.ProviderProfile, error) {
	var p types.ProviderProfile
	var avatarURL, bio *string
	err := r.db.QueryRow(ctx,
		`SELECT provider_id, avatar_url, bio
		 FROM provider_profiles
		 WHERE provider_id = $1`,
		providerID,
	).Scan(&p.ProviderID, &avatarURL, &bio)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.ProviderProfile{ProviderID: providerID}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read provider profile", err)
	}
	if avatarURL != nil {
		p.AvatarURL = *avatarURL
	}
	if bio != nil {
		p.Bio = *bio
	}
	return &p, nil
}

// UpsertProfile stores avatar and bio edits.
func (r *ProviderRepository) UpsertProfile(ctx context.Context, p *types.ProviderProfile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO provider_profiles (provider_id, avatar_url, bio, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (provider_id) DO UPDATE
		   SET avatar_url = EXCLUDED.avatar_url,
		       bio = EXCLUDED.bio,
		       updated_at = NOW()`,
		p.ProviderID, nilIfEmpty(p.AvatarURL), nilIfEmpty(p.Bio),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert provider profile", err)
	}
	return nil
}
