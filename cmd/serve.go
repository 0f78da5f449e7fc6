package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"speaktoheaven/config"
	"speaktoheaven/handlers"
	"speaktoheaven/logger"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			features := config.LoadFeatures()
			if features.AuthEnabled && cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set when AUTH_ENABLED=true")
			}

			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, features, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, features config.Features, log *logger.Logger) error {
	log.Info("Booting",
		"auth", features.AuthEnabled,
		"billing", features.BillingEnabled,
		"operator", features.OperatorEnabled,
		"signup", features.SignupEnabled,
		"storage", cfg.StorageDriver,
		"completion", cfg.Completion.Provider,
	)

	a, err := wireApp(ctx, cfg, features, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if strings.EqualFold(cfg.LogMode, "prod") {
		gin.SetMode(gin.ReleaseMode)
	}
	var origins []string
	if cfg.FrontendURL != "" {
		origins = []string{strings.TrimRight(cfg.FrontendURL, "/")}
	}
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.NewRouter(a.handlers, handlers.RouterConfig{
			OperatorAPIKey: cfg.OperatorAPIKey,
			AllowOrigins:   origins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
