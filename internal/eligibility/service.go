// Package eligibility computes the provider gates consulted before a
// provider may accept jobs: ID verification and banking verification
// are hard gates, profile completeness is a soft prompt.
package eligibility

import (
	"context"
	"strings"

	"yardlink/internal/types"
)

// minBioLength is the non-trivial bio threshold for the profile
// completeness prompt.
const minBioLength = 20

// ProviderStore is the read surface for the three gate sub-resources.
// Implemented by db.ProviderRepository.
type ProviderStore interface {
	GetVerification(ctx context.Context, providerID string) (*types.ProviderVerification, error)
	GetBanking(ctx context.Context, providerID string) (*types.ProviderBankingDetails, error)
	GetProfile(ctx context.Context, providerID string) (*types.ProviderProfile, error)
}

// Service evaluates provider eligibility.
type Service struct {
	store ProviderStore
}

func NewService(store ProviderStore) *Service {
	return &Service{store: store}
}

// Check computes all three gates for a provider. Absent workflow rows
// read as pending, so a brand-new provider fails the hard gates
// without any setup step.
func (s *Service) Check(ctx context.Context, providerID string) (types.EligibilityResult, error) {
	result := types.EligibilityResult{ProviderID: providerID}

	verification, err := s.store.GetVerification(ctx, providerID)
	if err != nil {
		return types.EligibilityResult{}, err
	}
	result.IDVerified = verification.Status == types.VerificationApproved

	banking, err := s.store.GetBanking(ctx, providerID)
	if err != nil {
		return types.EligibilityResult{}, err
	}
	result.BankingVerified = banking.Status == types.VerificationApproved

	profile, err := s.store.GetProfile(ctx, providerID)
	if err != nil {
		return types.EligibilityResult{}, err
	}
	result.ProfileComplete = profile.AvatarURL != "" &&
		len(strings.TrimSpace(profile.Bio)) >= minBioLength

	return result, nil
}
