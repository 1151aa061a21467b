package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nextensio/ctrlseed/internal/logging"
	"github.com/nextensio/ctrlseed/internal/metrics"
	"github.com/nextensio/ctrlseed/provision"
	"github.com/nextensio/ctrlseed/sdk"
)

var (
	// Version information (set at build time via ldflags)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// seedOptions holds the flags of the root command.
type seedOptions struct {
	port        int
	token       string
	policyFile  string
	planFile    string
	metricsFile string

	maxAttempts  int
	retryInitial time.Duration
	retryMax     time.Duration

	readyInterval time.Duration
	readyTimeout  time.Duration

	timeout time.Duration
	rps     float64

	logLevel string
	devMode  bool
}

var opts seedOptions

// rootCmd provisions a controller when given a host and a temp dir.
var rootCmd = &cobra.Command{
	Use:   "ctrlseed <controller-host> <temp-dir>",
	Short: "ctrlseed - seed a controller with a test topology",
	Long: `ctrlseed provisions a freshly installed controller over its HTTP API.

It waits until the controller answers, then creates in order:
  - two gateways and one tenant
  - two users, each followed by its attributes
  - three bundles, each followed by its attributes
  - two routes
  - the access policy and the root CA certificate

Every step is retried with exponential backoff until the controller accepts
it. <temp-dir>/rootca.crt is uploaded as the certificate; the policy is read
from policy.AccessPolicy in the working directory unless --policy-file is set.

Flags default from CTRLSEED_* environment variables.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSeed,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.Version = versionString()
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", getEnv("CTRLSEED_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	pf.BoolVar(&opts.devMode, "dev", getEnvBool("CTRLSEED_DEV"),
		"Enable development mode (console logging instead of JSON)")

	f := rootCmd.Flags()
	f.IntVar(&opts.port, "port", getEnvInt("CTRLSEED_PORT", sdk.DefaultPort),
		"Controller API port")
	f.StringVar(&opts.token, "token", getEnv("CTRLSEED_TOKEN", ""),
		"Bearer token sent with every request (optional)")
	f.StringVar(&opts.policyFile, "policy-file", getEnv("CTRLSEED_POLICY_FILE", provision.DefaultPolicyFile),
		"Access policy file to upload")
	f.StringVar(&opts.planFile, "plan", getEnv("CTRLSEED_PLAN", ""),
		"YAML plan file (built-in test topology when empty)")
	f.StringVar(&opts.metricsFile, "metrics-file", getEnv("CTRLSEED_METRICS_FILE", ""),
		"Write Prometheus metrics to this file on exit")

	def := provision.DefaultRetryPolicy()
	f.IntVar(&opts.maxAttempts, "max-attempts", getEnvInt("CTRLSEED_MAX_ATTEMPTS", def.MaxAttempts),
		"Attempts per step before giving up (0 retries forever)")
	f.DurationVar(&opts.retryInitial, "retry-initial", getEnvDuration("CTRLSEED_RETRY_INITIAL", def.InitialDelay),
		"Delay after the first failed attempt")
	f.DurationVar(&opts.retryMax, "retry-max", getEnvDuration("CTRLSEED_RETRY_MAX", def.MaxDelay),
		"Maximum delay between attempts")

	f.DurationVar(&opts.readyInterval, "ready-interval", getEnvDuration("CTRLSEED_READY_INTERVAL", provision.DefaultReadyInterval),
		"Delay between readiness probes")
	f.DurationVar(&opts.readyTimeout, "ready-timeout", getEnvDuration("CTRLSEED_READY_TIMEOUT", provision.DefaultReadyTimeout),
		"How long to wait for the controller to come up")

	f.DurationVar(&opts.timeout, "timeout", getEnvDuration("CTRLSEED_TIMEOUT", 30*time.Second),
		"Per-request timeout")
	f.Float64Var(&opts.rps, "rps", getEnvFloat("CTRLSEED_RPS", 0),
		"Maximum requests per second (0 for unlimited)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	host, tempDir := args[0], args[1]

	logger, err := initLogger(opts.logLevel, opts.devMode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if err := metrics.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var plan *provision.Plan
	if opts.planFile != "" {
		p, err := provision.LoadPlan(opts.planFile)
		if err != nil {
			return err
		}
		plan = &p
	}

	baseURL := sdk.BaseURLForHost(host, opts.port)
	logger.Info("ctrlseed starting",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("controller", baseURL),
		zap.String("temp_dir", tempDir))

	client, err := sdk.NewClient(sdk.ClientConfig{
		BaseURL:           baseURL,
		Token:             opts.token,
		Timeout:           opts.timeout,
		RequestsPerSecond: opts.rps,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller client: %w", err)
	}

	driver, err := provision.New(provision.Config{
		Client:     client,
		TempDir:    tempDir,
		PolicyFile: opts.policyFile,
		Plan:       plan,
		Retry: provision.RetryPolicy{
			MaxAttempts:  opts.maxAttempts,
			InitialDelay: opts.retryInitial,
			MaxDelay:     opts.retryMax,
			Multiplier:   provision.DefaultRetryPolicy().Multiplier,
		},
		Readiness: provision.ReadinessConfig{
			Interval: opts.readyInterval,
			Timeout:  opts.readyTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	report, runErr := driver.Run(ctx)

	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			logger.Warn("Failed to write metrics", zap.String("path", opts.metricsFile), zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Error("Provisioning failed",
			zap.Int("steps_completed", completedSteps(report)),
			zap.Error(runErr))
		return fmt.Errorf("provisioning failed: %w", runErr)
	}

	logger.Info("Provisioning complete",
		zap.String(logging.FieldTenantID, report.TenantID),
		zap.Int("steps", len(report.Steps)),
		zap.Int("attempts", report.Attempts()),
		zap.Int64(logging.FieldDuration, report.Duration.Milliseconds()))
	return nil
}

func completedSteps(report *provision.Report) int {
	if report == nil {
		return 0
	}
	n := 0
	for _, s := range report.Steps {
		if s.Err == nil {
			n++
		}
	}
	return n
}

func initLogger(level string, devMode bool) (*zap.Logger, error) {
	cfg := logging.DefaultConfig()
	cfg.Level = level
	if devMode {
		cfg.Environment = logging.EnvironmentDevelopment
	}
	return logging.NewLogger(cfg)
}

// versionString returns formatted version information
func versionString() string {
	return fmt.Sprintf("ctrlseed %s (commit: %s, built: %s)",
		Version, Commit, BuildDate)
}
