package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebridge/telehealth-scheduling/internal/booking"
	"github.com/carebridge/telehealth-scheduling/internal/config"
	"github.com/carebridge/telehealth-scheduling/internal/db"
	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("autoclose-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running autoclose worker in env=%s interval=%s grace=%s", cfg.Env, cfg.WorkerInterval, cfg.AutocloseAfter)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	appointmentRepo := schedule.NewPgAppointmentRepository(pgPool)
	scheduleRepo := schedule.NewPgScheduleRepository(pgPool)

	// The worker never books or serves availability, so it carries no
	// detector, lock, or cache.
	svc := booking.NewService(appointmentRepo, scheduleRepo, nil, nil, booking.NopInvalidator{}, nil)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.AutocloseAfter)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping autoclose worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.AutocloseAfter)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, grace time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.AutoclosePastAppointments(runCtx, time.Now().Add(-grace)); err != nil {
		log.Printf("autoclose run error: %v", err)
		return
	}
	log.Printf("autoclose run complete in %s", time.Since(start))
}
