package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"yardlink/internal/jobs"
	"yardlink/internal/payments"
	"yardlink/internal/types"
)

// LeadDays is the fixed gap between a run's date and the cut dates it
// fires, so a generated job has provider visibility before its
// preferred date.
const LeadDays = 2

// dateLayout is the calendar-date form cut dates are stored in.
const dateLayout = "2006-01-02"

// AutopayDB lists the schedules a run scans and opens the per-cut
// transactions.
type AutopayDB interface {
	// ListEnabled returns every schedule with enabled = TRUE.
	ListEnabled(ctx context.Context) ([]*types.AutopaySettings, error)

	// BeginTx starts a transaction for one cut. The returned
	// AutopayFireTx must be committed or rolled back by the caller.
	BeginTx(ctx context.Context) (AutopayFireTx, error)
}

// AutopayFireTx is the transactional surface for firing a single cut:
// the conditional date advancement and the job insert commit or roll
// back together.
type AutopayFireTx interface {
	// AdvanceDate moves the given cut-date slot from firedDate to
	// nextDate, guarded on the stored value still equalling firedDate.
	// Returns false when another invocation already advanced it.
	AdvanceDate(ctx context.Context, id string, slot int, firedDate, nextDate string) (bool, error)

	// CreateJob inserts the generated job.
	CreateJob(ctx context.Context, j *types.JobRequest) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AutopayNotifier enqueues the best-effort customer notification after
// a cut commits.
type AutopayNotifier interface {
	Publish(ctx context.Context, msg types.NotificationMessage) error
}

// AutopayService generates jobs from recurring schedules. Designed for
// a daily invocation; the reference time is always passed in.
type AutopayService struct {
	db       AutopayDB
	notifier AutopayNotifier
	logger   *slog.Logger
}

// NewAutopayService creates the autopay generator.
func NewAutopayService(db AutopayDB, notifier AutopayNotifier, logger *slog.Logger) *AutopayService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutopayService{db: db, notifier: notifier, logger: logger}
}

// GenerateDue fires every schedule cut whose stored date equals
// now + LeadDays.
//
// Each cut is processed independently in its own transaction: the
// conditional date advancement and the job insert land together or
// not at all, and the advancement's WHERE guard means a concurrent
// invocation can fire a given cut at most once. A bimonthly schedule
// whose two cut dates coincide fires both, producing two jobs; that
// is intentional and not deduplicated.
//
// Returns the number of jobs created.
func (s *AutopayService) GenerateDue(ctx context.Context, now time.Time) (int, error) {
	targetDate := now.UTC().AddDate(0, 0, LeadDays).Format(dateLayout)

	schedules, err := s.db.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing enabled schedules: %w", err)
	}

	s.logger.InfoContext(ctx, "autopay scan",
		"target_date", targetDate,
		"enabled_schedules", len(schedules),
	)

	created := 0
	for _, schedule := range schedules {
		for _, cut := range cutDates(schedule) {
			slot, cutDate := cut.slot, cut.date
			if cutDate != targetDate {
				continue
			}
			job, err := s.fireCut(ctx, schedule, slot, cutDate, cut.day, now)
			if err != nil {
				s.logger.ErrorContext(ctx, "autopay cut failed",
					"schedule_id", schedule.ID,
					"slot", slot,
					"cut_date", cutDate,
					"error", err,
				)
				// Other schedules (and the other slot) still run.
				continue
			}
			if job == nil {
				// Another invocation already advanced this cut.
				continue
			}
			created++

			s.notify(ctx, schedule, job, now)
		}
	}

	s.logger.InfoContext(ctx, "autopay run complete",
		"target_date", targetDate,
		"jobs_created", created,
	)

	return created, nil
}

type scheduleCut struct {
	slot int
	date string
	day  int
}

// cutDates returns the cut-date slots for a schedule, in slot order,
// each carrying the recurring day the next date is anchored on. Slot 2
// exists only for bimonthly schedules.
func cutDates(s *types.AutopaySettings) []scheduleCut {
	cuts := []scheduleCut{{slot: 1, date: s.NextScheduledDate, day: s.RecurringDay}}
	if s.Frequency == types.FrequencyBimonthly && s.NextScheduledDate2 != nil {
		day2 := 0
		if s.RecurringDay2 != nil {
			day2 = *s.RecurringDay2
		}
		cuts = append(cuts, scheduleCut{slot: 2, date: *s.NextScheduledDate2, day: day2})
	}
	return cuts
}

// fireCut runs one cut's transaction. A nil job with nil error means
// the cut was already consumed by a concurrent invocation.
func (s *AutopayService) fireCut(ctx context.Context, schedule *types.AutopaySettings, slot int, firedDate string, recurringDay int, now time.Time) (*types.JobRequest, error) {
	fired, err := time.Parse(dateLayout, firedDate)
	if err != nil {
		return nil, fmt.Errorf("schedule %s slot %d has malformed cut date %q: %w", schedule.ID, slot, firedDate, err)
	}
	nextDate := NextCutDate(fired, recurringDay).Format(dateLayout)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning cut transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	advanced, err := tx.AdvanceDate(ctx, schedule.ID, slot, firedDate, nextDate)
	if err != nil {
		return nil, fmt.Errorf("advancing cut date: %w", err)
	}
	if !advanced {
		return nil, nil
	}

	job := buildJobFromSchedule(schedule, firedDate, now)
	if err := tx.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating scheduled job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing cut: %w", err)
	}
	return job, nil
}

// buildJobFromSchedule materializes a job from the schedule's template
// snapshot. The job is created already paid (the schedule holds the
// pre-authorized instrument) but still opens for provider acceptance.
func buildJobFromSchedule(schedule *types.AutopaySettings, targetDate string, now time.Time) *types.JobRequest {
	basePrice := payments.BasePriceFor(schedule.LawnSize)
	platformFee, providerPayout := payments.SplitAtCreation(basePrice)

	title := schedule.JobType
	if title == "" {
		title = "Scheduled lawn care"
	}

	now = now.UTC()
	return &types.JobRequest{
		ID:                     jobs.NewJobID(),
		CustomerID:             schedule.CustomerID,
		BasePrice:              basePrice,
		PlatformFee:            platformFee,
		ProviderPayout:         providerPayout,
		Title:                  title + " - " + schedule.LocationName,
		Description:            schedule.JobType,
		Location:               schedule.Location,
		Parish:                 schedule.Parish,
		LawnSize:               schedule.LawnSize,
		AdditionalRequirements: schedule.AdditionalRequirements,
		PreferredDate:          targetDate,
		Status:                 types.JobStatusOpen,
		PaymentStatus:          types.PaymentPaid,
		PaymentReference:       "autopay:" + schedule.ID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func (s *AutopayService) notify(ctx context.Context, schedule *types.AutopaySettings, job *types.JobRequest, now time.Time) {
	msg := types.NotificationMessage{
		MessageID:   "ntf_" + uuid.NewString(),
		Type:        types.NotifJobScheduled,
		RecipientID: schedule.CustomerID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		CreatedAt:   now.UTC(),
		AdditionalData: map[string]any{
			"schedule_id":    schedule.ID,
			"preferred_date": job.PreferredDate,
		},
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		// The job creation is the durable side effect; a failed
		// notification is logged and swallowed.
		s.logger.ErrorContext(ctx, "autopay notification failed",
			"schedule_id", schedule.ID,
			"job_id", job.ID,
			"error", err,
		)
	}
}

// NextCutDate advances a fired cut by exactly one month, anchored on
// the schedule's recurring day so a clamp in a short month never
// sticks: day 31 goes Jan 31 -> Feb 28 -> Mar 31, not Mar 28. A
// non-positive recurring day (legacy rows) falls back to the fired
// date's day. time.AddDate is not used because it normalizes overflow
// into the following month.
func NextCutDate(fired time.Time, recurringDay int) time.Time {
	day := recurringDay
	if day <= 0 {
		day = fired.Day()
	}
	year, month, _ := fired.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, 0, 0, 0, 0, time.UTC)
}
