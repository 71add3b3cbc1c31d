package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	gateapp "github.com/hit-sharq/kasikeu-boys-high-school/internal/app"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/telemetry"
)

const defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gate",
		Long: `Start the gate HTTP server.

Configuration comes from the optional --config file and SCHOOL_GATE_*
environment variables. ADMIN_IDS and WEBHOOK_SECRET are also honoured.
Without an upstream the gate still answers its own endpoints and returns 404
for every allowed site request.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", config.DefaultAddress, "Address to listen on")
	bindFlags(cmd.Flags(), "address")

	return cmd
}

// loadConfig loads the configuration from the --config flag and the environment.
func loadConfig() (*config.Config, error) {
	var opts []config.Option
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The flag wins over the file only when given explicitly
	address := cfg.GetAddress()
	if cmd.Flags().Changed("address") {
		address = viper.GetString("address")
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	app, err := gateapp.NewSchoolGateApp(ctx,
		gateapp.WithConfig(cfg),
		gateapp.WithAddress(address),
		gateapp.WithMeterProvider(tel.MeterProvider()),
		gateapp.WithTracerProvider(tel.TracerProvider()),
		gateapp.WithMetricsHandler(tel.MetricsHandler()),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	slog.Info("Starting school gate", "address", address)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(app.Start)
	g.Go(func() error {
		<-gctx.Done()
		return app.Stop(defaultGracefulTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
