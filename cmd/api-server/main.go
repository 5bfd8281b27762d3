package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebridge/telehealth-scheduling/internal/api"
	"github.com/carebridge/telehealth-scheduling/internal/availability"
	"github.com/carebridge/telehealth-scheduling/internal/booking"
	"github.com/carebridge/telehealth-scheduling/internal/cache"
	"github.com/carebridge/telehealth-scheduling/internal/config"
	"github.com/carebridge/telehealth-scheduling/internal/db"
	redisclient "github.com/carebridge/telehealth-scheduling/internal/redis"
	"github.com/carebridge/telehealth-scheduling/internal/schedule"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s cache_ttl=%s buffer_minutes=%d",
		cfg.Env, cfg.HTTPPort, cfg.CacheTTL, cfg.BufferMinutes)

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

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	scheduleRepo := schedule.NewPgScheduleRepository(pgPool)
	appointmentRepo := schedule.NewPgAppointmentRepository(pgPool)
	clock := availability.SystemClock()

	availabilitySvc := availability.NewService(scheduleRepo, appointmentRepo, clock)
	detector := availability.NewDetector(scheduleRepo, appointmentRepo, clock, availability.BufferPolicy{
		Minutes:   cfg.BufferMinutes,
		Mandatory: cfg.BufferMandatory,
	})

	availabilityCache, err := cache.New(availabilitySvc.GetAvailability, clock, cache.Options{
		Size:         cfg.CacheSize,
		TTL:          cfg.CacheTTL,
		IdleTTL:      cfg.CacheIdleTTL,
		RegenTimeout: cfg.RegenTimeout,
	})
	if err != nil {
		log.Fatalf("cache init error: %v", err)
	}
	defer availabilityCache.Stop()

	locker := redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL)
	bookingSvc := booking.NewService(appointmentRepo, scheduleRepo, detector, locker, availabilityCache, booking.NopNotifier{})

	router := api.NewRouter(api.RouterConfig{
		Availability:       availabilityCache,
		Detector:           detector,
		Booking:            bookingSvc,
		Schedules:          scheduleRepo,
		Cache:              availabilityCache,
		DefaultSlotMinutes: cfg.DefaultSlotMinutes,
		PgPool:             pgPool,
		Redis:              rdb,
		Env:                cfg.Env,
		Version:            version,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
