package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/odontoapp/booking-api/internal/config"
	"github.com/odontoapp/booking-api/internal/repository/postgres"
	notificationService "github.com/odontoapp/booking-api/internal/service/notification"
	"github.com/odontoapp/booking-api/internal/worker"
	"github.com/odontoapp/booking-api/pkg/logger"
	"github.com/odontoapp/booking-api/pkg/metrics"
	"github.com/odontoapp/booking-api/pkg/push"
)

// Standalone reminder worker, for deployments that run the sweep outside
// the API process. The reminder_sent flag keeps the two modes from ever
// double-sending, so running both by accident is safe.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	slotRepo := postgres.NewSlotRepository(db)
	userRepo := postgres.NewUserRepository(db)

	dispatcher := push.NewExpoClient(push.Config{
		Endpoint: cfg.Push.Endpoint,
		Timeout:  time.Duration(cfg.Push.TimeoutSeconds) * time.Second,
	})

	notifSvc := notificationService.NewService(userRepo, dispatcher, appLogger)

	reminderWorker := worker.NewReminderWorker(
		slotRepo,
		notifSvc,
		cfg.Reminder.Interval(),
		cfg.Reminder.Lookahead(),
		appLogger,
		metrics.New("booking_reminder_worker"),
	)

	setupHealthCheck(cfg.Reminder.HealthCheckPort, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutting down...")
		cancel()
	}()

	reminderWorker.Start(ctx)
}

func setupHealthCheck(port int, appLogger *logger.Logger) {
	if port <= 0 {
		port = 8081
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":"+strconv.Itoa(port), mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}
