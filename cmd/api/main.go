package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/odontoapp/booking-api/internal/config"
	"github.com/odontoapp/booking-api/internal/email"
	"github.com/odontoapp/booking-api/internal/handler"
	authHandler "github.com/odontoapp/booking-api/internal/handler/auth"
	slotHandler "github.com/odontoapp/booking-api/internal/handler/slot"
	"github.com/odontoapp/booking-api/internal/middleware"
	"github.com/odontoapp/booking-api/internal/repository/postgres"
	"github.com/odontoapp/booking-api/internal/router"
	authService "github.com/odontoapp/booking-api/internal/service/auth"
	notificationService "github.com/odontoapp/booking-api/internal/service/notification"
	slotService "github.com/odontoapp/booking-api/internal/service/slot"
	"github.com/odontoapp/booking-api/internal/worker"
	pkgauth "github.com/odontoapp/booking-api/pkg/auth"
	"github.com/odontoapp/booking-api/pkg/logger"
	"github.com/odontoapp/booking-api/pkg/messaging"
	redisBroker "github.com/odontoapp/booking-api/pkg/messaging/redis"
	"github.com/odontoapp/booking-api/pkg/metrics"
	"github.com/odontoapp/booking-api/pkg/push"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	slotRepo := postgres.NewSlotRepository(db)
	userRepo := postgres.NewUserRepository(db)

	// The broker feeds the mobile in-app notification stream; the API
	// stays up without it.
	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redisBroker.NewRedisBroker(cfg.Redis.URL, &appLogger.ZL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, slot events will not be published")
		} else {
			defer broker.Close()
		}
	}

	dispatcher := push.NewExpoClient(push.Config{
		Endpoint: cfg.Push.Endpoint,
		Timeout:  time.Duration(cfg.Push.TimeoutSeconds) * time.Second,
	})

	jwtSvc := pkgauth.NewJWTService(cfg.JWT)
	emailSvc := email.NewService(cfg.SMTP)
	notifSvc := notificationService.NewService(userRepo, dispatcher, appLogger)
	authSvc := authService.NewService(userRepo, jwtSvc, emailSvc, appLogger)
	slotSvc := slotService.NewService(slotRepo, notifSvc, broker, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(authSvc),
		slotHandler.NewHandler(slotSvc),
		handler.NewHealthHandler(db),
		router.Config{
			RateLimit:      100,
			RateBurst:      200,
			RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			CORS:           middleware.DefaultCORSConfig(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The reminder sweep runs in-process alongside request handling.
	reminderWorker := worker.NewReminderWorker(
		slotRepo,
		notifSvc,
		cfg.Reminder.Interval(),
		cfg.Reminder.Lookahead(),
		appLogger,
		metrics.New("booking_api_reminder"),
	)
	go reminderWorker.Start(ctx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
