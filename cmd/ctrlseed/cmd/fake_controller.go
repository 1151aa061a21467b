package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nextensio/ctrlseed/internal/fakectrl"
	"github.com/nextensio/ctrlseed/internal/logging"
)

var (
	fakeListenAddr string
	fakeTenantID   string
	fakeRateLimit  float64
	fakeBurst      int
)

var fakeControllerCmd = &cobra.Command{
	Use:   "fake-controller",
	Short: "Serve an in-memory controller API for local runs",
	Long: `Start a fake controller that accepts every request ctrlseed makes.

Tenants are kept in memory and every other create is acknowledged with
{"Result":"ok"}. Useful for trying ctrlseed without a cluster:

  ctrlseed fake-controller --listen :8080 &
  ctrlseed localhost /tmp/certs`,
	Args: cobra.NoArgs,
	RunE: runFakeController,
}

func init() {
	rootCmd.AddCommand(fakeControllerCmd)

	fakeControllerCmd.Flags().StringVar(&fakeListenAddr, "listen", getEnv("CTRLSEED_FAKE_LISTEN", ":8080"),
		"Address to listen on")
	fakeControllerCmd.Flags().StringVar(&fakeTenantID, "tenant-id", getEnv("CTRLSEED_FAKE_TENANT_ID", ""),
		"Fixed id for created tenants (random when empty)")
	fakeControllerCmd.Flags().Float64Var(&fakeRateLimit, "rate-limit", getEnvFloat("CTRLSEED_FAKE_RATE_LIMIT", 0),
		"Answer 429 above this many requests per second per client (0 disables)")
	fakeControllerCmd.Flags().IntVar(&fakeBurst, "burst", getEnvInt("CTRLSEED_FAKE_BURST", 10),
		"Burst size for --rate-limit")
}

func runFakeController(cmd *cobra.Command, args []string) error {
	logger, err := initLogger(opts.logLevel, opts.devMode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if !opts.devMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fakeOpts := []fakectrl.Option{
		fakectrl.WithLogger(logger.With(zap.String(logging.FieldComponent, "fake-controller"))),
	}
	if fakeTenantID != "" {
		fakeOpts = append(fakeOpts, fakectrl.WithTenantID(fakeTenantID))
	}
	if fakeRateLimit > 0 {
		fakeOpts = append(fakeOpts, fakectrl.WithRateLimit(fakeRateLimit, fakeBurst))
	}

	logger.Info("Fake controller listening",
		zap.String("listen", fakeListenAddr),
		zap.String("api", fakectrl.APIPrefix),
		zap.String("metrics", fakectrl.MetricsPath))

	if err := fakectrl.New(fakeOpts...).ListenAndServe(ctx, fakeListenAddr); err != nil {
		return fmt.Errorf("fake controller: %w", err)
	}

	logger.Info("Fake controller stopped")
	return nil
}
