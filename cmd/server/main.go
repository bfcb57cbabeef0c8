package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"possales/internal/config"
	"possales/internal/handler"
	"possales/internal/infra"
	"possales/internal/repository"
	"possales/internal/router"
	"possales/internal/service"
	"possales/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in development, JSON in production
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTelEnabled {
		shutdownTracing, err := infra.SetupTracing(ctx, cfg.ServiceName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up tracing")
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			_ = shutdownTracing(flushCtx)
		}()
	}

	db, err := infra.NewDatabase(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to connect to database")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	svcs := router.NewServices(cfg, db, rdb)
	if err := svcs.Auth.EnsureAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin account")
	}

	// Report e-mail workers. The retry scheduler holds retries back while
	// the SMTP breaker is open.
	mailer := infra.NewMailer(cfg)
	if !mailer.Configured() {
		log.Warn().Msg("SMTP_HOST not set, summary e-mails will fail and land in the DLQ")
	}
	mailBreaker := infra.NewBreaker("smtp", infra.DefaultBreakerConfig())
	summary := service.NewSummaryBuilder(repository.NewSaleRepository(db), cfg.ReportLocation())

	pool := worker.NewPool(rdb, map[string]worker.Handler{
		worker.JobReportEmail: worker.NewReportWorker(summary, mailer, mailBreaker),
	})
	pool.Start(ctx, cfg.WorkerPoolSize)
	worker.StartRetryScheduler(ctx, rdb, worker.QueueReports, func() bool {
		return mailBreaker.State() == infra.StateOpen
	})

	var h http.Handler = router.New(ctx, cfg, svcs, handler.Health(db, rdb, mailBreaker))
	if cfg.OTelEnabled {
		h = otelhttp.NewHandler(h, cfg.ServiceName)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("%s listening on :%d", cfg.ServiceName, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	cancel()
	log.Info().Msg("server exited")
}
