package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tentspec/packages/core/config"
	"github.com/abdul-hamid-achik/tentspec/packages/core/env"
	"github.com/abdul-hamid-achik/tentspec/packages/core/runner"
	"github.com/abdul-hamid-achik/tentspec/packages/output"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
)

var runCmd = &cobra.Command{
	Use:   "run [validator...]",
	Short: "Run conformance validators against a Tent server",
	Long: `Run the Tent protocol validators against the server named by
TENT_REMOTE_SERVER (or "server" in tentspec.yaml).

Validator names may use a leading or trailing * wildcard.

Examples:
  tentspec run
  tentspec run PostsFeedValidator
  tentspec run '*Proxy*' --output junit --output-file report.xml
  TENT_REMOTE_SERVER=http://localhost:3000 tentspec run --watch`,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	configFlag     string
	serverFlag     string
	verboseFlag    int
	noColorFlag    bool
	outputFlag     string
	outputFileFlag string
	timeoutFlag    string
	asyncFlag      string
	waitForFlag    string
	rateFlag       float64
	proxyFlag      string
	insecureFlag   bool
	schemaDirFlag  string
	localAddrFlag  string
	localURLFlag   string
	databaseFlag   string
	logLevelFlag   string
	logFormatFlag  string
	watchFlag      bool
)

func init() {
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("TENTSPEC_CONFIG", ""), "Path to config file (env: TENTSPEC_CONFIG)")
	runCmd.Flags().StringVarP(&serverFlag, "server", "s", "", "Base URL of the server under test (env: "+config.EnvRemoteServer+")")

	// Output flags
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v prints every exchange)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("TENTSPEC_NO_COLOR", false), "Disable colored output (env: TENTSPEC_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("TENTSPEC_OUTPUT", ""), "Output format: console, json, junit, tap (env: TENTSPEC_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("TENTSPEC_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: TENTSPEC_OUTPUT_FILE)")
	runCmd.Flags().StringVar(&logLevelFlag, "log-level", getEnvString("TENTSPEC_LOG_LEVEL", ""), "Log level: debug, info, warn, error (env: TENTSPEC_LOG_LEVEL)")
	runCmd.Flags().StringVar(&logFormatFlag, "log-format", getEnvString("TENTSPEC_LOG_FORMAT", ""), "Log format: text, json (env: TENTSPEC_LOG_FORMAT)")

	// Execution flags
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("TENTSPEC_TIMEOUT", ""), "Request timeout (e.g., 30s, 1m) (env: TENTSPEC_TIMEOUT)")
	runCmd.Flags().StringVar(&asyncFlag, "async-timeout", "", "How long to wait for requests the server makes back to the peer (e.g., 10s)")
	runCmd.Flags().StringVar(&waitForFlag, "wait-for", getEnvString("TENTSPEC_WAIT_FOR", ""), "Wait up to this long for the server to answer before running (env: TENTSPEC_WAIT_FOR)")
	runCmd.Flags().Float64Var(&rateFlag, "rate", float64(getEnvInt("TENTSPEC_RATE", 0)), "Maximum requests per second to the server, 0 for unlimited (env: TENTSPEC_RATE)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the config file and schema directory and re-run on change")
	runCmd.Flags().StringVar(&schemaDirFlag, "schema-dir", "", "Directory of extra YAML schemas")

	// Network flags
	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("TENTSPEC_PROXY", ""), "Proxy URL for HTTP requests (env: TENTSPEC_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("TENTSPEC_INSECURE", false), "Disable SSL certificate validation (env: TENTSPEC_INSECURE)")

	// Embedded peer flags
	runCmd.Flags().StringVar(&localAddrFlag, "local-addr", "", "Listen address of the embedded peer (env: "+config.EnvLocalAddr+")")
	runCmd.Flags().StringVar(&localURLFlag, "local-url", "", "URL the server under test uses to reach the peer (env: "+config.EnvLocalURL+")")
	runCmd.Flags().StringVar(&databaseFlag, "database", "", "Peer database, e.g. sqlite3://peer.db (env: "+config.EnvDatabaseURL+")")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatHeader(version string)
	FormatRecord(path []string, rec *results.Record)
	FormatSetupFailure(sf *spec.SetupFailure)
	FormatResult(result *runner.RunResult)
	FormatError(err error)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// exitError carries an exit code out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func runCommand(cmd *cobra.Command, args []string) error {
	if _, err := env.Load("."); err != nil {
		return withCode(ExitConfigError, fmt.Errorf("loading .env: %w", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, result, err := runOnce(ctx, cmd, args)
	if !watchFlag {
		switch {
		case errors.Is(err, runner.ErrInvalidValidators):
			return withCode(ExitBuildError, err)
		case errors.Is(err, runner.ErrServerUnavailable):
			return withCode(ExitNetworkError, err)
		case err != nil:
			return err
		case result.Results.Failed():
			return withCode(ExitTestFailure, errors.New("validation failed"))
		}
		return nil
	}
	if cfg == nil {
		return err
	}

	return watch(ctx, cmd, cfg, func() {
		if _, _, err := runOnce(ctx, cmd, args); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "run failed: %v\n", err)
		}
	})
}

// runOnce reloads the configuration and runs the selected validators
// against a fresh peer.
func runOnce(ctx context.Context, cmd *cobra.Command, args []string) (*config.Config, *runner.RunResult, error) {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return nil, nil, withCode(ExitConfigError, err)
	}
	if len(args) > 0 {
		cfg.Validators = args
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	w, closeOut, err := outputWriter(cmd.OutOrStdout(), cfg)
	if err != nil {
		return cfg, nil, err
	}
	defer closeOut()

	formatter := newFormatter(outputFormat(cfg), w, cfg)
	formatter.FormatHeader(version)

	h, err := newHarness(ctx, cfg, logger)
	if err != nil {
		formatter.FormatError(err)
		return cfg, nil, withCode(ExitConfigError, err)
	}
	defer h.Close()

	result, err := h.Run(ctx, formatter)
	if err != nil {
		formatter.FormatError(err)
		return cfg, nil, err
	}
	formatter.FormatResult(result)
	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(result.Duration); err != nil {
			return cfg, nil, fmt.Errorf("error writing output: %w", err)
		}
	}
	return cfg, result, nil
}

// loadRunConfig layers the config file, TENT_* variables and flags, in
// increasing precedence.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}

	flags := &config.Config{
		Server:      serverFlag,
		DatabaseURL: databaseFlag,
		LocalAddr:   localAddrFlag,
		LocalURL:    localURLFlag,
		RateLimit:   rateFlag,
		Proxy:       proxyFlag,
		SchemaDir:   schemaDirFlag,
		LogLevel:    logLevelFlag,
		LogFormat:   logFormatFlag,
	}
	for _, d := range []struct {
		flag string
		dst  *int
	}{
		{timeoutFlag, &flags.Timeout},
		{asyncFlag, &flags.AsyncTimeout},
		{waitForFlag, &flags.WaitFor},
	} {
		if d.flag == "" {
			continue
		}
		dur, err := time.ParseDuration(d.flag)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w (use format like 30s, 1m, 500ms)", d.flag, err)
		}
		*d.dst = int(dur.Milliseconds())
	}
	if insecureFlag {
		flags.ValidateSSL = config.BoolPtr(false)
	}
	if verboseFlag > 0 {
		flags.Verbose = config.BoolPtr(true)
	}
	if cmd.Flags().Changed("no-color") || noColorFlag {
		flags.NoColor = config.BoolPtr(noColorFlag)
	}

	cfg := fileConfig.Merge(flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func outputFormat(cfg *config.Config) string {
	if outputFlag != "" {
		return strings.ToLower(outputFlag)
	}
	if len(cfg.Reporters) > 0 {
		return strings.ToLower(cfg.Reporters[0])
	}
	return "console"
}

// outputWriter opens --output-file, or a report file in OutputDir, when
// one is configured.
func outputWriter(stdout io.Writer, cfg *config.Config) (io.Writer, func(), error) {
	path := outputFileFlag
	if path == "" && cfg.OutputDir != "" {
		path = filepath.Join(cfg.OutputDir, "tentspec."+reportExt(outputFormat(cfg)))
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("cannot create output directory: %w", err)
		}
	}
	if path == "" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func reportExt(format string) string {
	switch format {
	case "json":
		return "json"
	case "junit":
		return "xml"
	case "tap":
		return "tap"
	}
	return "txt"
}

func newFormatter(format string, w io.Writer, cfg *config.Config) Formatter {
	switch format {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w))
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w))
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(w))
	default: // "console"
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor()),
		)
	}
}

// watch re-runs whenever the config file or a schema file changes.
func watch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	configPath := configFlag
	if configPath == "" {
		configPath = config.FindConfig(".")
	}
	var watched []string
	if configPath != "" {
		watched = append(watched, filepath.Dir(configPath))
	}
	if cfg.SchemaDir != "" {
		watched = append(watched, cfg.SchemaDir)
	}
	if len(watched) == 0 {
		return errors.New("nothing to watch: no config file or schema directory")
	}
	for _, dir := range watched {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	return watchLoop(ctx, watcher.Events, watcher.Errors, configPath, WatchDebounceDelay,
		cmd.OutOrStdout(), cmd.ErrOrStderr(), rerun)
}

// watchLoop debounces file events and calls rerun on its own goroutine,
// so runs never overlap. Changes seen during a run trigger one more run
// after it.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, configPath string,
	delay time.Duration, stdout, stderr io.Writer, rerun func()) error {
	changed := make(chan string, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isWatchedFile(event.Name, configPath) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(delay, func() {
				select {
				case changed <- name:
				default:
				}
			})
		case name := <-changed:
			fmt.Fprintf(stdout, "\n\nFile changed: %s\nRe-running validators...\n\n", name)
			rerun()
			fmt.Fprintf(stdout, "\nWatching for changes... (press Ctrl+C to stop)\n")
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			fmt.Fprintf(stderr, "watcher error: %v\n", err)
		}
	}
}

func isWatchedFile(path, configPath string) bool {
	if configPath != "" && filepath.Clean(path) == filepath.Clean(configPath) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}
