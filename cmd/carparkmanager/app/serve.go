package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bher20/carparkmanager/internal/alerting"
	"github.com/bher20/carparkmanager/internal/api"
	"github.com/bher20/carparkmanager/internal/carparks"
	"github.com/bher20/carparkmanager/internal/config"
	"github.com/bher20/carparkmanager/internal/cron"
	"github.com/bher20/carparkmanager/internal/notification"
	"github.com/bher20/carparkmanager/internal/storage"
)

const (
	defaultGracefulTimeout = 15 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler and the HTTP API",
		Long: `Start the refresh scheduler and serve the car park API.

The first refresh runs immediately. Until it succeeds, data endpoints answer
503. Set refresh.wait_for_first to hold the listener until that first cycle
has finished.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on (default \":8000\", or \":$PORT\")")
	cmd.Flags().Bool("wait-for-first", false, "Run the first refresh before accepting connections")
	mustBind("address", cmd.Flags().Lookup("address"))
	mustBind("refresh.wait_for_first", cmd.Flags().Lookup("wait-for-first"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.NewMemory()
	defer store.Close()

	opts := []cron.Option{cron.WithReporters(reporters(cfg, log)...)}
	if cfg.Refresh.WaitForFirst {
		opts = append(opts, cron.WithoutInitialRun())
	}
	sched, err := cron.New(carparks.NewClient(cfg.Feed), store, cfg.Scheduler(), log, opts...)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if cfg.Refresh.WaitForFirst {
		log.Info("refresh: waiting for the first snapshot before serving")
		if _, err := sched.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("refresh: first cycle failed, serving without data", zap.Error(err))
		}
	}

	router := api.NewRouter(carparks.NewService(store),
		api.WithRefresher(sched),
		api.WithLogger(log))
	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Start(gctx)
	})
	g.Go(func() error {
		log.Info("api: listening", zap.String("address", cfg.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("api: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("carparkmanager stopped")
	return err
}

// reporters returns the failure reporters enabled by cfg.
func reporters(cfg config.Config, log *zap.Logger) []alerting.Reporter {
	var out []alerting.Reporter
	if cfg.Alert.Enabled() {
		out = append(out, alerting.NewAlerter(cfg.Alert, log))
		log.Info("alerting: webhook enabled",
			zap.String("type", alerting.DetectWebhookType(cfg.Alert.WebhookURL)),
			zap.Int("min_failures", cfg.Alert.MinFailuresBeforeAlert))
	}
	if cfg.Email.Enabled() {
		out = append(out, notification.NewEmailNotifier(cfg.Email, log))
		log.Info("notification: email enabled", zap.Int("recipients", len(cfg.Email.To)))
	}
	return out
}
