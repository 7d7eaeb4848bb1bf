package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"momentum-screener/internal/logger"
	"momentum-screener/internal/report"
	"momentum-screener/internal/store"
	"momentum-screener/internal/types"
)

// Exit codes
const (
	exitOK            = 0
	exitSourceFailure = 1
	exitInvalidConfig = 2
	exitReportFailure = 3
)

// errReportWrite marks a completed run whose report could not be saved.
var errReportWrite = errors.New("report write failed")

var (
	configPath  string
	workers     int
	delay       float64
	tickers     []string
	staticFile  string
	reportDir   string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Momentum stock screener",
	Long: `Screens a universe of tickers for momentum: a minimum price increase, a volume surge,
a price range and a float ceiling, then confirms candidates with a keyword news check.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Screen the configured ticker universe",
	Long: `Run one screening pass and write the report.

Examples:
  screener run
  screener run --config config.yaml --workers 4 --delay 1.5
  screener run --tickers ABC,XYZ
  screener run --static testdata/fixture.yaml   # replay frozen snapshots offline`,
	RunE: runScreen,
}

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Print the ticker universe that a run would screen",
	RunE:  runUniverse,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and exit",
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")

	runCmd.Flags().IntVar(&workers, "workers", 0, "Override performance.max_workers")
	runCmd.Flags().Float64Var(&delay, "delay", 0, "Override performance.rate_limit_delay_seconds")
	runCmd.Flags().StringSliceVar(&tickers, "tickers", nil, "Screen these tickers instead of the configured universe")
	runCmd.Flags().StringVar(&staticFile, "static", "", "Replay market data and headlines from a fixture file")
	runCmd.Flags().StringVar(&reportDir, "report-dir", "", "Override report.dir")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")

	universeCmd.Flags().StringVar(&staticFile, "static", "", "List the symbols of a fixture file")

	rootCmd.AddCommand(runCmd, universeCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrConfigInvalid):
		return exitInvalidConfig
	case errors.Is(err, errReportWrite):
		return exitReportFailure
	default:
		return exitSourceFailure
	}
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initializeSystem(); err != nil {
		return err
	}
	defer shutdownSystem()

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	compressOldReports(ctx, cfg)

	app, err := initializeApp(ctx, cfg)
	if err != nil {
		return err
	}

	symbols, err := resolveTickers(ctx, cfg, app)
	if err != nil {
		return err
	}

	res, err := app.screener.Run(ctx, symbols)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Warn(ctx, "Run interrupted, writing partial report", "processed", res.Processed, "errored", res.Errored)
	}

	summary := report.FromResult("", res)
	if err := report.PrintConsole(os.Stdout, summary); err != nil {
		logger.Warn(ctx, "Failed to print console report", "error", err)
	}

	paths, err := report.NewWriter(cfg.Report.Dir, cfg.Report.Formats).Write(summary)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to write report", err)
		return fmt.Errorf("%w: %w", errReportWrite, err)
	}
	logger.Info(ctx, "Report written", "run_id", summary.RunID, "files", strings.Join(paths, ","))

	if err := app.metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn(ctx, "Failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
	}
	return nil
}

func runUniverse(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initializeSystem(); err != nil {
		return err
	}
	defer shutdownSystem()

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	app, err := initializeApp(ctx, cfg)
	if err != nil {
		return err
	}
	symbols, err := resolveTickers(ctx, cfg, app)
	if err != nil {
		return err
	}
	for _, s := range symbols {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if err := initializeSystem(); err != nil {
		return err
	}
	defer shutdownSystem()

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	sc := cfg.ScreeningConfig()
	fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: provider=%s universe=%s workers=%d delay=%s mode=%s news=%t\n",
		cfg.MarketData.Provider, cfg.Universe.Source, sc.MaxWorkers, sc.RateLimitDelay, sc.RateLimitMode, sc.RequireNews)
	return nil
}

// applyFlags copies explicitly set command-line overrides onto cfg.
func applyFlags(cmd *cobra.Command, cfg *store.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		w := workers
		cfg.Performance.MaxWorkers = &w
	}
	if flags.Changed("delay") {
		d := delay
		cfg.Performance.RateLimitDelaySeconds = &d
	}
	if flags.Changed("static") {
		cfg.MarketData.Provider = store.ProviderStatic
		cfg.MarketData.StaticFile = staticFile
	}
	if flags.Changed("report-dir") {
		cfg.Report.Dir = reportDir
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = metricsFile
	}
}
