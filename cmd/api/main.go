package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dairycoop/settlement-backend/internal/config"
	appHTTP "github.com/dairycoop/settlement-backend/internal/handler/http"
	"github.com/dairycoop/settlement-backend/internal/pkg/cron"
	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/dairycoop/settlement-backend/internal/pkg/jwt"
	"github.com/dairycoop/settlement-backend/internal/pkg/sse"
	"github.com/dairycoop/settlement-backend/internal/pkg/webhook"
	"github.com/dairycoop/settlement-backend/internal/repository/postgresql"
	notificationService "github.com/dairycoop/settlement-backend/internal/service/notification"
	settlementService "github.com/dairycoop/settlement-backend/internal/service/settlement"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger := appHTTP.NewLogger(os.Stdout, cfg.SlogLevel(), cfg.App.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolSize{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer db.Close()

	// Repositories
	staffRepo := postgresql.NewStaffRepository(db)
	collectionRepo := postgresql.NewCollectionRepository(db, cfg.Settlement.ReadRetryAttempts)
	summaryRepo := postgresql.NewDailySummaryRepository(db)
	penaltyConfigRepo := postgresql.NewPenaltyConfigRepository(db)
	creditRepo := postgresql.NewCreditRepository(db)
	paymentRepo := postgresql.NewPaymentRepository(db)
	notificationRepo := postgresql.NewNotificationRepository(db)

	// Notifications
	hub := sse.NewHub()
	var hook notificationService.WebhookSender
	if client := webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.Token, cfg.Webhook.Timeout, cfg.Webhook.Retries); client != nil {
		hook = client
	}
	notifSvc := notificationService.NewNotificationService(notificationRepo, hub, hook, notificationService.Config{
		BatchSize:     cfg.Notification.BatchSize,
		FlushInterval: cfg.Notification.FlushInterval,
		WorkerCount:   cfg.Notification.WorkerCount,
		QueueSize:     cfg.Notification.QueueSize,
	})
	defer notifSvc.Stop()

	// Settlement workflow
	settlementSvc := settlementService.NewSettlementService(
		postgresql.NewTransactor(db),
		settlementService.Repositories{
			Staff:          staffRepo,
			Collections:    collectionRepo,
			Summaries:      summaryRepo,
			PenaltyConfigs: penaltyConfigRepo,
			Credits:        creditRepo,
			Payments:       paymentRepo,
		},
		notifSvc,
		settlementService.Config{MoneyPlaces: cfg.Settlement.MoneyPlaces},
	)

	// Scheduled jobs
	if cfg.Cron.Enabled {
		loc, err := cfg.Cron.Location()
		if err != nil {
			return err
		}
		scheduler := cron.NewScheduler(loc)
		jobs := cron.NewSettlementJobs(settlementSvc, staffRepo, summaryRepo, notifSvc, cfg.Settlement.PaymentPeriodDays)
		if err := jobs.RegisterJobs(scheduler, cfg.Cron.GeneratePayout, cfg.Cron.RemindPending); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// HTTP
	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	router := appHTTP.NewRouter(
		logger,
		cfg.AllowedOrigins(),
		JWTService,
		appHTTP.NewSettlementHandler(settlementSvc),
		appHTTP.NewNotificationHandler(notifSvc, JWTService),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server running", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
