package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"yardlink/internal/types"
)

// AutopayRepository provides data access for the autopay_settings table.
// The scheduler advances cut dates with a conditional update keyed on
// the date that fired, so two concurrent scheduler invocations cannot
// both fire the same cut.
type AutopayRepository struct {
	db DBTX
}

// NewAutopayRepository creates a new AutopayRepository backed by the
// given database connection (pool or transaction).
func NewAutopayRepository(db DBTX) *AutopayRepository {
	return &AutopayRepository{db: db}
}

const autopayColumns = `a.id, a.customer_id, a.location_name,
	a.enabled, a.frequency, a.recurring_day, a.recurring_day_2,
	a.next_scheduled_date, a.next_scheduled_date_2,
	a.location, a.parish, a.lawn_size, a.job_type, a.additional_requirements,
	a.created_at, a.updated_at`

func scanAutopay(row pgx.Row) (*types.AutopaySettings, error) {
	var s types.AutopaySettings
	var additionalRequirements *string

	err := row.Scan(
		&s.ID,
		&s.CustomerID,
		&s.LocationName,
		&s.Enabled,
		&s.Frequency,
		&s.RecurringDay,
		&s.RecurringDay2,
		&s.NextScheduledDate,
		&s.NextScheduledDate2,
		&s.Location,
		&s.Parish,
		&s.LawnSize,
		&s.JobType,
		&additionalRequirements,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if additionalRequirements != nil {
		s.AdditionalRequirements = *additionalRequirements
	}
	return &s, nil
}

// Create inserts a new autopay schedule. The caller must set the ID
// (prefixed UUID, "ap_...") and the initial cut date(s) before calling.
func (r *AutopayRepository) Create(ctx context.Context, s *types.AutopaySettings) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO autopay_settings (
			id, customer_id, location_name,
			enabled, frequency, recurring_day, recurring_day_2,
			next_scheduled_date, next_scheduled_date_2,
			location, parish, lawn_size, job_type, additional_requirements,
			created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9,
			$10, $11, $12, $13, $14,
			NOW(), NOW()
		)`,
		s.ID,
		s.CustomerID,
		s.LocationName,
		s.Enabled,
		s.Frequency,
		s.RecurringDay,
		s.RecurringDay2,
		s.NextScheduledDate,
		s.NextScheduledDate2,
		s.Location,
		s.Parish,
		s.LawnSize,
		s.JobType,
		nilIfEmpty(s.AdditionalRequirements),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create autopay schedule", err)
	}
	return nil
}

// GetByID retrieves a schedule scoped to its owning customer.
func (r *AutopayRepository) GetByID(ctx context.Context, id string, customerID string) (*types.AutopaySettings, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+autopayColumns+`
		 FROM autopay_settings a
		 WHERE a.id = $1 AND a.customer_id = $2`,
		id, customerID,
	)
	s, err := scanAutopay(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "autopay schedule not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve autopay schedule", err)
	}
	return s, nil
}

// ListByCustomer retrieves all schedules for a customer.
func (r *AutopayRepository) ListByCustomer(ctx context.Context, customerID string) ([]*types.AutopaySettings, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+autopayColumns+`
		 FROM autopay_settings a
		 WHERE a.customer_id = $1
		 ORDER BY a.created_at ASC`,
		customerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list autopay schedules", err)
	}
	defer rows.Close()

	return collectAutopay(rows)
}

// ListEnabled retrieves every enabled schedule. The daily scheduler
// scans this set and compares cut dates in Go.
func (r *AutopayRepository) ListEnabled(ctx context.Context) ([]*types.AutopaySettings, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+autopayColumns+`
		 FROM autopay_settings a
		 WHERE a.enabled = TRUE
		 ORDER BY a.id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list enabled autopay schedules", err)
	}
	defer rows.Close()

	return collectAutopay(rows)
}

// Update applies customer edits to template and schedule fields.
// Cut-date advancement does NOT go through here; see AdvanceDate.
func (r *AutopayRepository) Update(ctx context.Context, s *types.AutopaySettings) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE autopay_settings SET
			location_name = $1,
			frequency = $2,
			recurring_day = $3,
			recurring_day_2 = $4,
			next_scheduled_date = $5,
			next_scheduled_date_2 = $6,
			location = $7,
			parish = $8,
			lawn_size = $9,
			job_type = $10,
			additional_requirements = $11,
			updated_at = NOW()
		 WHERE id = $12 AND customer_id = $13`,
		s.LocationName,
		s.Frequency,
		s.RecurringDay,
		s.RecurringDay2,
		s.NextScheduledDate,
		s.NextScheduledDate2,
		s.Location,
		s.Parish,
		s.LawnSize,
		s.JobType,
		nilIfEmpty(s.AdditionalRequirements),
		s.ID,
		s.CustomerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update autopay schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "autopay schedule not found", nil)
	}
	return nil
}

// SetEnabled flips the kill switch. Schedules are never physically
// deleted; disable is the terminal customer action.
func (r *AutopayRepository) SetEnabled(ctx context.Context, id string, customerID string, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE autopay_settings SET
			enabled = $1,
			updated_at = NOW()
		 WHERE id = $2 AND customer_id = $3`,
		enabled, id, customerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to toggle autopay schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "autopay schedule not found", nil)
	}
	return nil
}

// AdvanceDate moves one cut date forward, conditional on the fired date
// still being the stored value. Slot 1 is next_scheduled_date, slot 2
// is next_scheduled_date_2. Returns false when the predicate misses,
// meaning another invocation already fired this cut.
func (r *AutopayRepository) AdvanceDate(ctx context.Context, id string, slot int, firedDate string, nextDate string) (bool, error) {
	column := "next_scheduled_date"
	if slot == 2 {
		column = "next_scheduled_date_2"
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE autopay_settings SET
			`+column+` = $1,
			updated_at = NOW()
		 WHERE id = $2
		   AND enabled = TRUE
		   AND `+column+` = $3`,
		nextDate, id, firedDate,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to advance autopay cut date", err)
	}
	return tag.RowsAffected() > 0, nil
}

func collectAutopay(rows pgx.Rows) ([]*types.AutopaySettings, error) {
	var results []*types.AutopaySettings
	for rows.Next() {
		s, scanErr := scanAutopay(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan autopay row", scanErr)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating autopay rows", err)
	}
	return results, nil
}
