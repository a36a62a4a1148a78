package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yardlink/internal/types"
)

type fakePayoutDB struct {
	latest    time.Time
	latestErr error
	paid      map[string]struct{}
	completed []*types.JobRequest

	createErrFor map[string]error
	created      []*types.ProviderPayout
}

func (db *fakePayoutDB) LatestPayoutDate(context.Context) (time.Time, error) {
	if db.latestErr != nil {
		return time.Time{}, db.latestErr
	}
	return db.latest, nil
}

func (db *fakePayoutDB) PaidJobIDs(context.Context) (map[string]struct{}, error) {
	if db.paid == nil {
		return map[string]struct{}{}, nil
	}
	return db.paid, nil
}

func (db *fakePayoutDB) ListCompletedForPayout(context.Context) ([]*types.JobRequest, error) {
	return db.completed, nil
}

func (db *fakePayoutDB) CreatePayout(_ context.Context, p *types.ProviderPayout) error {
	if err := db.createErrFor[p.ProviderID]; err != nil {
		return err
	}
	db.created = append(db.created, p)
	return nil
}

var payoutNow = time.Date(2026, time.June, 15, 3, 0, 0, 0, time.UTC)

func completedPayableJob(id, providerID string, payout float64) *types.JobRequest {
	completedAt := payoutNow.Add(-72 * time.Hour)
	return &types.JobRequest{
		ID:                 id,
		CustomerID:         "cus_1",
		AcceptedProviderID: &providerID,
		BasePrice:          5500,
		ProviderPayout:     payout,
		Status:             types.JobStatusCompleted,
		CompletedAt:        &completedAt,
	}
}

func TestPayoutRunIntervalGuard(t *testing.T) {
	t.Run("run inside the interval is skipped", func(t *testing.T) {
		db := &fakePayoutDB{
			latest:    payoutNow.Add(-13 * 24 * time.Hour),
			completed: []*types.JobRequest{completedPayableJob("job_1", "pro_1", 3850)},
		}
		svc := NewPayoutService(db, &capturingNotifier{}, nil)

		summary, err := svc.Run(context.Background(), payoutNow)
		require.NoError(t, err)
		assert.True(t, summary.Skipped)
		assert.NotEmpty(t, summary.SkipReason)
		assert.Empty(t, db.created)
	})

	t.Run("run past the interval proceeds", func(t *testing.T) {
		db := &fakePayoutDB{
			latest:    payoutNow.Add(-15 * 24 * time.Hour),
			completed: []*types.JobRequest{completedPayableJob("job_1", "pro_1", 3850)},
		}
		svc := NewPayoutService(db, &capturingNotifier{}, nil)

		summary, err := svc.Run(context.Background(), payoutNow)
		require.NoError(t, err)
		assert.False(t, summary.Skipped)
		assert.Len(t, db.created, 1)
	})

	t.Run("first ever run is never skipped", func(t *testing.T) {
		db := &fakePayoutDB{
			completed: []*types.JobRequest{completedPayableJob("job_1", "pro_1", 3850)},
		}
		svc := NewPayoutService(db, &capturingNotifier{}, nil)

		summary, err := svc.Run(context.Background(), payoutNow)
		require.NoError(t, err)
		assert.False(t, summary.Skipped)
	})
}

func TestPayoutRunGroupsByProvider(t *testing.T) {
	db := &fakePayoutDB{
		completed: []*types.JobRequest{
			completedPayableJob("job_1", "pro_b", 3850),
			completedPayableJob("job_2", "pro_a", 2450),
			completedPayableJob("job_3", "pro_b", 5600),
		},
	}
	notifier := &capturingNotifier{}
	svc := NewPayoutService(db, notifier, nil)

	summary, err := svc.Run(context.Background(), payoutNow)
	require.NoError(t, err)

	require.Len(t, db.created, 2)
	// Providers are processed in sorted order.
	assert.Equal(t, "pro_a", db.created[0].ProviderID)
	assert.Equal(t, 2450.0, db.created[0].Amount)
	assert.Equal(t, []string{"job_2"}, db.created[0].JobIDs)

	assert.Equal(t, "pro_b", db.created[1].ProviderID)
	assert.Equal(t, 9450.0, db.created[1].Amount)
	assert.Equal(t, 2, db.created[1].JobsCount)
	assert.Equal(t, []string{"job_1", "job_3"}, db.created[1].JobIDs)
	assert.Equal(t, payoutNow, db.created[1].PayoutDate)

	require.Len(t, summary.Results, 2)
	for _, r := range summary.Results {
		assert.True(t, r.Succeeded)
	}

	require.Len(t, notifier.published, 2)
	assert.Equal(t, types.NotifPayoutSent, notifier.published[0].Type)
	assert.Equal(t, "pro_a", notifier.published[0].RecipientID)
	assert.Equal(t, payoutNow, notifier.published[0].CreatedAt)
}

func TestPayoutRunSkipsAlreadyPaidJobs(t *testing.T) {
	db := &fakePayoutDB{
		paid: map[string]struct{}{"job_1": {}},
		completed: []*types.JobRequest{
			completedPayableJob("job_1", "pro_1", 3850),
			completedPayableJob("job_2", "pro_1", 2450),
		},
	}
	svc := NewPayoutService(db, &capturingNotifier{}, nil)

	_, err := svc.Run(context.Background(), payoutNow)
	require.NoError(t, err)

	require.Len(t, db.created, 1)
	assert.Equal(t, []string{"job_2"}, db.created[0].JobIDs)
	assert.Equal(t, 2450.0, db.created[0].Amount)
}

func TestPayoutRunAmountFallbacks(t *testing.T) {
	finalOnly := completedPayableJob("job_final", "pro_1", 0)
	final := 4000.0
	finalOnly.FinalPrice = &final

	baseOnly := completedPayableJob("job_base", "pro_1", 0)

	db := &fakePayoutDB{completed: []*types.JobRequest{finalOnly, baseOnly}}
	svc := NewPayoutService(db, &capturingNotifier{}, nil)

	_, err := svc.Run(context.Background(), payoutNow)
	require.NoError(t, err)

	require.Len(t, db.created, 1)
	assert.Equal(t, 4000.0+5500.0, db.created[0].Amount)
}

func TestPayoutRunSkipsNonPositiveTotals(t *testing.T) {
	zero := completedPayableJob("job_zero", "pro_1", 0)
	zero.BasePrice = 0

	db := &fakePayoutDB{completed: []*types.JobRequest{zero}}
	notifier := &capturingNotifier{}
	svc := NewPayoutService(db, notifier, nil)

	summary, err := svc.Run(context.Background(), payoutNow)
	require.NoError(t, err)
	assert.Empty(t, db.created)
	assert.Empty(t, summary.Results)
	assert.Empty(t, notifier.published)
}

func TestPayoutRunProviderFailureIsolated(t *testing.T) {
	db := &fakePayoutDB{
		completed: []*types.JobRequest{
			completedPayableJob("job_1", "pro_a", 3850),
			completedPayableJob("job_2", "pro_b", 2450),
		},
		createErrFor: map[string]error{"pro_a": errors.New("insert failed")},
	}
	notifier := &capturingNotifier{}
	svc := NewPayoutService(db, notifier, nil)

	summary, err := svc.Run(context.Background(), payoutNow)
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.False(t, summary.Results[0].Succeeded)
	assert.Equal(t, "pro_a", summary.Results[0].ProviderID)
	assert.NotEmpty(t, summary.Results[0].Error)
	assert.True(t, summary.Results[1].Succeeded)

	// Only the successful provider gets a row and a notification.
	require.Len(t, db.created, 1)
	assert.Equal(t, "pro_b", db.created[0].ProviderID)
	require.Len(t, notifier.published, 1)
	assert.Equal(t, "pro_b", notifier.published[0].RecipientID)
}

func TestPayoutRunOrphanCompletedJobIgnored(t *testing.T) {
	orphan := completedPayableJob("job_orphan", "pro_1", 3850)
	orphan.AcceptedProviderID = nil

	db := &fakePayoutDB{completed: []*types.JobRequest{orphan}}
	svc := NewPayoutService(db, &capturingNotifier{}, nil)

	_, err := svc.Run(context.Background(), payoutNow)
	require.NoError(t, err)
	assert.Empty(t, db.created)
}
