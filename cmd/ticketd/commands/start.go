package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/ticketd/internal/logger"
	"github.com/marmos91/ticketd/pkg/api"
	"github.com/marmos91/ticketd/pkg/config"
	"github.com/marmos91/ticketd/pkg/controller"
	"github.com/marmos91/ticketd/pkg/crypto"
	"github.com/marmos91/ticketd/pkg/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ticketd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart()
	},
}

func runStart() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return err
	}

	logger.Info("Starting ticketd", "version", Version, "commit", Commit)

	cipher, err := crypto.NewCipher(cfg.Cipher)
	if err != nil {
		logger.Error("Invalid cipher configuration", "error", err)
		return err
	}
	kdf, err := crypto.NewKeyDeriver(cfg.KDF)
	if err != nil {
		logger.Error("Invalid kdf configuration", "error", err)
		return err
	}

	ctrl, err := controller.New(controller.Options{
		CredentialsDir: cfg.CredentialsDir,
		TicketValidity: cfg.TicketValidity,
		Cipher:         cipher,
		KeyDeriver:     kdf,
		ForceBootstrap: cfg.Bootstrap.Force,
	})
	if err != nil {
		logger.Error("Failed to create controller", "error", err)
		return err
	}

	if err := ctrl.Init(); err != nil {
		logger.Error("Failed to initialize controller", "error", err)
		return err
	}
	if err := ctrl.Activate(); err != nil {
		logger.Error("Failed to activate controller", "error", err)
		return err
	}

	var authMetrics *metrics.AuthMetrics
	if cfg.Metrics.Enabled {
		authMetrics = metrics.NewAuthMetrics(metrics.InitRegistry())
	}

	server := api.NewServer(cfg.API, ctrl, authMetrics, cfg.Metrics.Enabled)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down API server", "error", err)
	}
	if err := ctrl.Deactivate(); err != nil {
		logger.Error("Failed to deactivate controller", "error", err)
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}
