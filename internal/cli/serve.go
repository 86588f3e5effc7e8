package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factlens/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification API over HTTP",
	Long: `Serve starts an HTTP server exposing:
  POST   /v1/verify   verify a claim
  DELETE /v1/cache    clear the result cache
  GET    /healthz     liveness
  GET    /readyz      provider readiness
  GET    /metrics     Prometheus metrics

Example:
  factlens serve --addr :8088`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	app, err := NewApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	opts := []server.Option{
		server.WithGatherer(app.Registry),
		server.WithLogger(slog.Default()),
	}
	if app.Cache != nil {
		opts = append(opts, server.WithCache(app.Cache))
	}
	for name, p := range app.ReadinessChecks() {
		opts = append(opts, server.WithReadinessCheck(name, p))
	}

	srv := server.New(app.Pipeline, opts...)
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
