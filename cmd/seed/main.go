package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/telehealth-scheduling/internal/db"
)

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"Europe/London",
	"Australia/Sydney",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	providerIDs, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, providerIDs, patientIDs, 5000); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			specialty text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS patients (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			email text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id uuid PRIMARY KEY,
			provider_id uuid NOT NULL,
			timezone text NOT NULL,
			is_default boolean NOT NULL DEFAULT false,
			is_active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS schedules_default_one
			ON schedules (provider_id) WHERE is_default AND is_active`,
		`CREATE TABLE IF NOT EXISTS weekly_availability (
			id uuid PRIMARY KEY,
			schedule_id uuid NOT NULL REFERENCES schedules (id) ON DELETE CASCADE,
			day_of_week int NOT NULL,
			is_available boolean NOT NULL,
			start_time text NOT NULL,
			end_time text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS break_periods (
			id uuid PRIMARY KEY,
			schedule_id uuid NOT NULL REFERENCES schedules (id) ON DELETE CASCADE,
			day_of_week int NOT NULL,
			is_recurring boolean NOT NULL,
			start_time text NOT NULL,
			end_time text NOT NULL,
			title text,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_exceptions (
			id uuid PRIMARY KEY,
			schedule_id uuid NOT NULL REFERENCES schedules (id) ON DELETE CASCADE,
			date timestamptz NOT NULL,
			type text NOT NULL,
			start_time text NOT NULL DEFAULT '',
			end_time text NOT NULL DEFAULT '',
			title text,
			notes text,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS schedule_exceptions_schedule_date
			ON schedule_exceptions (schedule_id, date)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id uuid PRIMARY KEY,
			provider_id uuid NOT NULL,
			patient_id uuid NOT NULL,
			start_time timestamptz NOT NULL,
			duration_minutes int NOT NULL,
			status text NOT NULL,
			title text,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS appointments_provider_start
			ON appointments (provider_id, start_time)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}

		if err := seedSchedule(ctx, tx, id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

// seedSchedule gives a provider a Mon-Fri 09:00-17:00 default schedule
// with a lunch break, plus the occasional day off next week.
func seedSchedule(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error {
	scheduleID := uuid.New()
	tz := timezones[gofakeit.Number(0, len(timezones)-1)]

	_, err := tx.Exec(ctx, `
		INSERT INTO schedules (id, provider_id, timezone, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, true, now(), now())
	`, scheduleID, providerID, tz)
	if err != nil {
		return err
	}

	for day := 0; day <= 6; day++ {
		available := day >= 1 && day <= 5
		start, end := "09:00", "17:00"
		if !available {
			start, end = "", ""
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_availability (id, schedule_id, day_of_week, is_available, start_time, end_time, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, uuid.New(), scheduleID, day, available, start, end)
		if err != nil {
			return err
		}
	}

	for day := 1; day <= 5; day++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO break_periods (id, schedule_id, day_of_week, is_recurring, start_time, end_time, title, created_at, updated_at)
			VALUES ($1, $2, $3, true, '12:00', '13:00', 'Lunch', now(), now())
		`, uuid.New(), scheduleID, day)
		if err != nil {
			return err
		}
	}

	if gofakeit.Number(0, 4) == 0 {
		off := time.Now().UTC().AddDate(0, 0, gofakeit.Number(1, 7))
		off = time.Date(off.Year(), off.Month(), off.Day(), 0, 0, 0, 0, time.UTC)
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_exceptions (id, schedule_id, date, type, start_time, end_time, title, notes, created_at, updated_at)
			VALUES ($1, $2, $3, 'day_off', '', '', 'Day off', NULL, now(), now())
		`, uuid.New(), scheduleID, off)
		if err != nil {
			return err
		}
	}

	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedAppointments scatters bookings over the next two weeks, aligned
// to half-hour boundaries. Seed data may overlap; the booking path is
// what enforces exclusivity.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, providers, patients []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	const batchSize = 500

	now := time.Now().UTC()
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			provider := providers[gofakeit.Number(0, len(providers)-1)]
			patient := patients[gofakeit.Number(0, len(patients)-1)]

			day := now.AddDate(0, 0, gofakeit.Number(0, 13))
			hour := gofakeit.Number(9, 16)
			half := gofakeit.Number(0, 1) * 30
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, half, 0, 0, time.UTC)

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, provider_id, patient_id, start_time, duration_minutes, status, title, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 30, 'scheduled', NULL, now(), now())
			`, uuid.New(), provider, patient, start)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("appointments seeded: %d/%d", end, count)
	}

	log.Println("appointments seeded")
	return nil
}
