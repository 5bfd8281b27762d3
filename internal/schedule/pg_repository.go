package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewPgScheduleRepository(pool *pgxpool.Pool) *PgScheduleRepository {
	return &PgScheduleRepository{pool: pool}
}

// Helpers

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Timezone,
		&s.IsDefault,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgScheduleRepository) loadCollections(ctx context.Context, s *Schedule) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, day_of_week, is_available, start_time, end_time, created_at, updated_at
		FROM weekly_availability
		WHERE schedule_id = $1
		ORDER BY day_of_week
	`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var w WeeklyAvailability
		var day int
		if err := rows.Scan(&w.ID, &w.ScheduleID, &day, &w.IsAvailable, &w.StartTime, &w.EndTime, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return err
		}
		w.DayOfWeek = time.Weekday(day)
		s.Weekly = append(s.Weekly, w)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, schedule_id, day_of_week, is_recurring, start_time, end_time, title, created_at, updated_at
		FROM break_periods
		WHERE schedule_id = $1
		ORDER BY day_of_week, start_time
	`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var b BreakPeriod
		var day int
		if err := rows.Scan(&b.ID, &b.ScheduleID, &day, &b.IsRecurring, &b.StartTime, &b.EndTime, &b.Title, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return err
		}
		b.DayOfWeek = time.Weekday(day)
		s.Breaks = append(s.Breaks, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, schedule_id, date, type, start_time, end_time, title, notes, created_at, updated_at
		FROM schedule_exceptions
		WHERE schedule_id = $1
		ORDER BY date
	`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e ScheduleException
		if err := rows.Scan(&e.ID, &e.ScheduleID, &e.Date, &e.Type, &e.StartTime, &e.EndTime, &e.Title, &e.Notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return err
		}
		s.Exceptions = append(s.Exceptions, e)
	}
	return rows.Err()
}

// Interface methods

func (r *PgScheduleRepository) GetActiveSchedule(ctx context.Context, providerID uuid.UUID) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, timezone, is_default, is_active, created_at, updated_at
		FROM schedules
		WHERE provider_id = $1 AND is_default AND is_active
	`, providerID)

	s, err := scanSchedule(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadCollections(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PgScheduleRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, timezone, is_default, is_active, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`, id)

	s, err := scanSchedule(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadCollections(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PgScheduleRepository) CreateSchedule(ctx context.Context, s *Schedule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if s.IsDefault && s.IsActive {
		if err := checkDefaultActive(ctx, tx, s.ProviderID, uuid.Nil); err != nil {
			return err
		}
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO schedules (id, provider_id, timezone, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, s.ID, s.ProviderID, s.Timezone, s.IsDefault, s.IsActive)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	if err := writeCollections(ctx, tx, s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgScheduleRepository) UpdateSchedule(ctx context.Context, s *Schedule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if s.IsDefault && s.IsActive {
		if err := checkDefaultActive(ctx, tx, s.ProviderID, s.ID); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE schedules
		SET timezone = $2,
		    is_default = $3,
		    is_active = $4,
		    updated_at = now()
		WHERE id = $1
	`, s.ID, s.Timezone, s.IsDefault, s.IsActive)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}

	// Nested collections are replaced wholesale on update.
	for _, table := range []string{"weekly_availability", "break_periods", "schedule_exceptions"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE schedule_id = $1`, s.ID); err != nil {
			return err
		}
	}
	if err := writeCollections(ctx, tx, s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// checkDefaultActive locks the provider's schedules and fails with
// ErrScheduleConflict if another default active schedule exists.
func checkDefaultActive(ctx context.Context, tx pgx.Tx, providerID, excludeID uuid.UUID) error {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT id FROM schedules
			WHERE provider_id = $1 AND is_default AND is_active AND id <> $2
			FOR UPDATE
		) locked
	`, providerID, excludeID).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrScheduleConflict
	}
	return nil
}

func writeCollections(ctx context.Context, tx pgx.Tx, s *Schedule) error {
	for i := range s.Weekly {
		w := &s.Weekly[i]
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_availability (id, schedule_id, day_of_week, is_available, start_time, end_time, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, w.ID, s.ID, int(w.DayOfWeek), w.IsAvailable, w.StartTime, w.EndTime)
		if err != nil {
			return fmt.Errorf("insert weekly availability: %w", err)
		}
	}
	for i := range s.Breaks {
		b := &s.Breaks[i]
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO break_periods (id, schedule_id, day_of_week, is_recurring, start_time, end_time, title, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, b.ID, s.ID, int(b.DayOfWeek), b.IsRecurring, b.StartTime, b.EndTime, b.Title)
		if err != nil {
			return fmt.Errorf("insert break period: %w", err)
		}
	}
	for i := range s.Exceptions {
		e := &s.Exceptions[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_exceptions (id, schedule_id, date, type, start_time, end_time, title, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		`, e.ID, s.ID, e.Date, e.Type, e.StartTime, e.EndTime, e.Title, e.Notes)
		if err != nil {
			return fmt.Errorf("insert schedule exception: %w", err)
		}
	}
	return nil
}

func (r *PgScheduleRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *PgScheduleRepository) UpsertException(ctx context.Context, ex *ScheduleException) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_exceptions (id, schedule_id, date, type, start_time, end_time, title, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (schedule_id, date) DO UPDATE
		SET type = EXCLUDED.type,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    title = EXCLUDED.title,
		    notes = EXCLUDED.notes,
		    updated_at = now()
	`, ex.ID, ex.ScheduleID, ex.Date, ex.Type, ex.StartTime, ex.EndTime, ex.Title, ex.Notes)
	if err != nil {
		return fmt.Errorf("upsert schedule exception: %w", err)
	}
	return nil
}

func (r *PgScheduleRepository) DeleteException(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM schedule_exceptions WHERE id = $1`, id)
	return err
}

func (r *PgScheduleRepository) UpsertBreak(ctx context.Context, b *BreakPeriod) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO break_periods (id, schedule_id, day_of_week, is_recurring, start_time, end_time, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET day_of_week = EXCLUDED.day_of_week,
		    is_recurring = EXCLUDED.is_recurring,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    title = EXCLUDED.title,
		    updated_at = now()
	`, b.ID, b.ScheduleID, int(b.DayOfWeek), b.IsRecurring, b.StartTime, b.EndTime, b.Title)
	if err != nil {
		return fmt.Errorf("upsert break period: %w", err)
	}
	return nil
}

func (r *PgScheduleRepository) DeleteBreak(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM break_periods WHERE id = $1`, id)
	return err
}

// PgAppointmentRepository implements AppointmentRepository on pgx.

type PgAppointmentRepository struct {
	pool *pgxpool.Pool
}

func NewPgAppointmentRepository(pool *pgxpool.Pool) *PgAppointmentRepository {
	return &PgAppointmentRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.StartTime,
		&a.DurationMinutes,
		&a.Status,
		&a.Title,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const appointmentColumns = `id, provider_id, patient_id, start_time, duration_minutes, status, title, created_at, updated_at`

func (r *PgAppointmentRepository) ListForProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	// Interval intersection, not containment: an appointment starting
	// before the window but ending inside it still counts.
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND start_time + make_interval(mins => duration_minutes) > $2
		ORDER BY start_time
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgAppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgAppointmentRepository) CreateIfNoOverlap(ctx context.Context, a *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	end := a.EndTime()

	// Lock the provider's rows in the window, then re-check overlap.
	// Two concurrent inserts for the same window serialize here.
	var count int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT id FROM appointments
			WHERE provider_id = $1
			  AND status <> 'cancelled'
			  AND start_time < $3
			  AND start_time + make_interval(mins => duration_minutes) > $2
			FOR UPDATE
		) locked
	`, a.ProviderID, a.StartTime, end).Scan(&count)
	if err != nil {
		return fmt.Errorf("overlap check: %w", err)
	}
	if count > 0 {
		return ErrAppointmentOverlap
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, start_time, duration_minutes, status, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ProviderID, a.PatientID, a.StartTime, a.DurationMinutes, a.Status, a.Title)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	*a = *created

	return tx.Commit(ctx)
}

func (r *PgAppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgAppointmentRepository) FindStalePast(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed', 'in_progress')
		  AND start_time + make_interval(mins => duration_minutes) < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
