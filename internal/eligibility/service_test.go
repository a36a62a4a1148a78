package eligibility

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yardlink/internal/types"
)

type fakeProviderStore struct {
	verification types.VerificationStatus
	banking      types.VerificationStatus
	avatarURL    string
	bio          string

	verificationErr error
	bankingErr      error
	profileErr      error
}

func (s *fakeProviderStore) GetVerification(_ context.Context, providerID string) (*types.ProviderVerification, error) {
	if s.verificationErr != nil {
		return nil, s.verificationErr
	}
	return &types.ProviderVerification{ProviderID: providerID, Status: s.verification}, nil
}

func (s *fakeProviderStore) GetBanking(_ context.Context, providerID string) (*types.ProviderBankingDetails, error) {
	if s.bankingErr != nil {
		return nil, s.bankingErr
	}
	return &types.ProviderBankingDetails{ProviderID: providerID, Status: s.banking}, nil
}

func (s *fakeProviderStore) GetProfile(_ context.Context, providerID string) (*types.ProviderProfile, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return &types.ProviderProfile{ProviderID: providerID, AvatarURL: s.avatarURL, Bio: s.bio}, nil
}

func TestCheck(t *testing.T) {
	longBio := "Reliable lawn care across Kingston and St. Andrew."

	cases := []struct {
		name  string
		store fakeProviderStore
		want  types.EligibilityResult
	}{
		{
			name: "fully verified with a complete profile",
			store: fakeProviderStore{
				verification: types.VerificationApproved,
				banking:      types.VerificationApproved,
				avatarURL:    "https://cdn.example.com/a.jpg",
				bio:          longBio,
			},
			want: types.EligibilityResult{IDVerified: true, BankingVerified: true, ProfileComplete: true},
		},
		{
			name: "pending verification fails the hard gate",
			store: fakeProviderStore{
				verification: types.VerificationPending,
				banking:      types.VerificationApproved,
				avatarURL:    "https://cdn.example.com/a.jpg",
				bio:          longBio,
			},
			want: types.EligibilityResult{IDVerified: false, BankingVerified: true, ProfileComplete: true},
		},
		{
			name: "rejected banking fails the hard gate",
			store: fakeProviderStore{
				verification: types.VerificationApproved,
				banking:      types.VerificationRejected,
				avatarURL:    "https://cdn.example.com/a.jpg",
				bio:          longBio,
			},
			want: types.EligibilityResult{IDVerified: true, BankingVerified: false, ProfileComplete: true},
		},
		{
			name: "missing avatar leaves the profile incomplete",
			store: fakeProviderStore{
				verification: types.VerificationApproved,
				banking:      types.VerificationApproved,
				bio:          longBio,
			},
			want: types.EligibilityResult{IDVerified: true, BankingVerified: true, ProfileComplete: false},
		},
		{
			name: "short bio leaves the profile incomplete",
			store: fakeProviderStore{
				verification: types.VerificationApproved,
				banking:      types.VerificationApproved,
				avatarURL:    "https://cdn.example.com/a.jpg",
				bio:          "I cut grass",
			},
			want: types.EligibilityResult{IDVerified: true, BankingVerified: true, ProfileComplete: false},
		},
		{
			name: "whitespace padding does not satisfy the bio threshold",
			store: fakeProviderStore{
				verification: types.VerificationApproved,
				banking:      types.VerificationApproved,
				avatarURL:    "https://cdn.example.com/a.jpg",
				bio:          "   short bio        ",
			},
			want: types.EligibilityResult{IDVerified: true, BankingVerified: true, ProfileComplete: false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.store
			svc := NewService(&store)

			got, err := svc.Check(context.Background(), "pro_1")
			require.NoError(t, err)

			tc.want.ProviderID = "pro_1"
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckHardGatesDriveCanAcceptJobs(t *testing.T) {
	store := &fakeProviderStore{
		verification: types.VerificationApproved,
		banking:      types.VerificationApproved,
	}
	svc := NewService(store)

	got, err := svc.Check(context.Background(), "pro_1")
	require.NoError(t, err)
	assert.True(t, got.CanAcceptJobs(), "profile completeness must not block acceptance")
	assert.False(t, got.ProfileComplete)
}

func TestCheckStoreErrorPropagates(t *testing.T) {
	store := &fakeProviderStore{bankingErr: errors.New("read timeout")}
	svc := NewService(store)

	_, err := svc.Check(context.Background(), "pro_1")
	require.Error(t, err)
}
