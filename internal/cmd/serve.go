package cmd

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

	"github.com/lowc1012/window-log-limiter/internal/config"
	"github.com/lowc1012/window-log-limiter/internal/log"
	"github.com/lowc1012/window-log-limiter/internal/observability"
	limiter "github.com/lowc1012/window-log-limiter/internal/ratelimiter"
	"github.com/lowc1012/window-log-limiter/internal/ratelimiter/algorithm"
	"github.com/lowc1012/window-log-limiter/internal/server"
	"github.com/lowc1012/window-log-limiter/internal/store"
	"github.com/lowc1012/window-log-limiter/internal/utils"
	"github.com/lowc1012/window-log-limiter/pkg/ratelimiter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rate limited HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), appConfig)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		providers, err := observability.Init(ctx, observability.Options{
			Writer:         os.Stdout,
			ExportInterval: cfg.Telemetry.ExportInterval,
			SampleRatio:    cfg.Telemetry.SampleRatio,
			StoreType:      cfg.Store.Type,
			Serialization:  cfg.Limiter.Serialization,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				log.Logger().Warn("Failed to flush telemetry", zap.Error(err))
			}
		}()
	}

	s, closeFn, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeFn()

	limiterConfig, err := newLimiterConfig(cfg, s, time.Now)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewRouter(limiterConfig, s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger().Info("Run a server", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Type))
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Logger().Info("Shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newLimiterConfig builds the tracker, limiter and key extractor from cfg.
func newLimiterConfig(cfg config.Config, s store.Store, now func() time.Time) (*ratelimiter.Config, error) {
	windowCfg, err := cfg.WindowConfig()
	if err != nil {
		return nil, err
	}

	tracker, err := algorithm.NewWindowTracker(s, windowCfg, cfg.TrackerOptions()...)
	if err != nil {
		return nil, err
	}

	extractor := utils.NewRemoteAddrExtractor()
	if headers := cfg.KeyHeaders(); len(headers) > 0 {
		extractor = utils.NewHTTPHeadersExtractor(headers...)
	}

	return &ratelimiter.Config{
		Extractor: extractor,
		Limiter:   limiter.NewSlidingLogLimiter(tracker, now),
		FailOpen:  cfg.Interceptor.FailOpen,
	}, nil
}
