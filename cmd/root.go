package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/hotgluexyz/postgres-compare/cmd.Version=1.2.3"
	Version = "dev" // Default to "dev" if not set during build

	// signalContext is set by main() before Cobra initialization
	// This ensures signal handling is set up before any library can interfere
	signalContext context.Context

	cfgFile       string
	configReadErr error
	debug         bool
	logFormat     string
	numRows       int
	workers       int

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	logger *slog.Logger
)

// SetSignalContext stores the signal-aware context created in main()
// This must be called before Execute() to ensure proper signal handling
func SetSignalContext(ctx context.Context) {
	signalContext = ctx
}

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, level, r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	// For simplicity, we ignore attributes in text-only mode
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	// For simplicity, we ignore groups in text-only mode
	return h
}

// initLogger initializes the slog logger based on debug flag and log format
func initLogger(isDebug bool, format string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(os.Stderr, opts)
	default: // "text" or anything else
		// For human-readable text output, we'll use a custom handler
		// that formats messages more naturally without key=value pairs
		handler = newTextOnlyHandler(os.Stderr, opts)
	}

	logger = slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:     "postgres-compare",
	Version: Version,
	Short:   "🔍 Compare two PostgreSQL databases for structural and content equivalence",
	Long: titleStyle.Render("Postgres Compare") + `

A CLI tool to verify that two PostgreSQL databases are equivalent.
Compares schemas, tables, columns, indexes, and row counts, and can
optionally sample and compare row content table by table.
Exits 0 when the databases match, 1 when any difference is found.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// Show help when no subcommand is specified
		cmd.Help()
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <database_a> <database_b>",
	Short: "Compare two databases on the configured server",
	Long: `Compare two databases reachable through the same connection endpoint.
Structure is always compared; row content is sampled when --num-rows-to-compare
is greater than zero.`,
	Args: cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		runCompare(args[0], args[1])
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(compareCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file with connection settings (required, JSON)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")

	// Compare-specific flags
	compareCmd.Flags().IntVar(&numRows, "num-rows-to-compare", 0, "rows to sample and compare per table (0 = structure only)")
	compareCmd.Flags().IntVar(&workers, "workers", 4, "number of tables compared in parallel")

	// Note: We don't use MarkFlagRequired because it checks before viper loads the config file.
	// Instead, validation happens in config.Validate() which runs after all config sources are loaded.

	// Bind persistent flags
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Bind compare flags
	_ = viper.BindPFlag("num_rows_to_compare", compareCmd.Flags().Lookup("num-rows-to-compare"))
	_ = viper.BindPFlag("workers", compareCmd.Flags().Lookup("workers"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("json")
	}

	viper.SetEnvPrefix("PGCOMPARE")
	viper.AutomaticEnv()

	if cfgFile == "" {
		return
	}

	// Surface the read error from runCompare, after the logger exists
	configReadErr = viper.ReadInConfig()
	if configReadErr == nil && debug {
		if logger == nil {
			initLogger(debug, logFormat)
		}
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

func runCompare(databaseA, databaseB string) {
	// Add panic recovery to catch any unexpected crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	config := &Config{
		Debug:            viper.GetBool("debug"),
		LogFormat:        viper.GetString("log_format"),
		Workers:          viper.GetInt("workers"),
		NumRowsToCompare: viper.GetInt("num_rows_to_compare"),
		Connection: ConnectionConfig{
			Host:     viper.GetString("host"),
			Port:     viper.GetInt("port"),
			User:     viper.GetString("user"),
			Password: viper.GetString("password"),
			SSL:      viper.GetBool("ssl"),
		},
		DatabaseA:           databaseA,
		DatabaseB:           databaseB,
		IgnoreTablesColumns: viper.GetStringMapStringSlice("ignore_tables_columns"),
	}

	// Initialize logger
	initLogger(config.Debug, config.LogFormat)

	// Log startup banner
	logger.Info("")
	logger.Info(fmt.Sprintf("🔍 Postgres Compare v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if cfgFile == "" {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", ErrConfigFileRequired.Error()))
		os.Exit(1)
	}
	if configReadErr != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: reading %s: %s", cfgFile, configReadErr.Error()))
		os.Exit(1)
	}

	logger.Debug("Validating configuration...")
	if err := config.Validate(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(1)
	}
	logger.Debug("Configuration validated successfully")

	// Use the signal context created in main() before Cobra initialization
	// This ensures signals were registered before any library interference
	ctx := signalContext
	if ctx == nil {
		// Fallback if SetSignalContext wasn't called (shouldn't happen)
		logger.Warn("Signal context not set, creating fallback...")
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	// Set up a goroutine to force-exit if graceful shutdown takes too long
	exited := make(chan struct{})
	go func() {
		<-ctx.Done()
		logger.Info("")
		logger.Info("⚠️  Interrupt signal received, shutting down...")

		select {
		case <-exited:
			// Graceful shutdown completed
			return
		case <-time.After(2 * time.Second):
			logger.Error("⚠️  Graceful shutdown timed out, forcing exit...")
			os.Exit(130)
		}
	}()

	logger.Debug("Creating comparer...")
	comparer := NewComparer(config, logger)
	logger.Debug("Starting comparison...")

	report, err := comparer.Run(ctx)
	close(exited) // Signal that the comparison has exited

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Comparison cancelled by user")
			os.Exit(130)
		}
		logger.Error(fmt.Sprintf("❌ Comparison failed: %s", err.Error()))
		os.Exit(1)
	}

	report.Render(os.Stdout)

	if report.HasSamplingErrors() {
		logger.Warn("⚠️  Some tables could not be sampled; their row content was not compared")
	}

	if !report.Pass {
		os.Exit(1)
	}

	logger.Info("")
	logger.Info("✅ Comparison completed successfully!")
}
