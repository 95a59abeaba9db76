package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/drip/internal/config"
	"github.com/wesleyorama2/drip/internal/engine"
	"github.com/wesleyorama2/drip/internal/metrics"
	"github.com/wesleyorama2/drip/internal/output"
	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a limiter with concurrent callers and report the pacing",
		Long: `Run a profile against a rate limiter and report how the grants were spaced.

Profile mode:
  drip run --config pacing.yaml

Quick mode (flags only):
  drip run --rate 100 --per 1s --callers 8 --takes 500

Flags given alongside --config override the profile's values.
The command exits 1 when any threshold fails.

The first interrupt stops the callers and reports what was collected;
a second one aborts the run.`,
		Args: cobra.NoArgs,
		RunE: runDrip,
	}

	cmd.Flags().StringP("config", "c", "", "Run profile (YAML or JSON)")
	cmd.Flags().String("strategy", "", "Limiter strategy: leaky-bucket, token-bucket, unlimited")
	cmd.Flags().IntP("rate", "r", 0, "Takes allowed per period")
	cmd.Flags().Duration("per", time.Second, "Period the rate is expressed over")
	cmd.Flags().Int("slack", 10, "Intervals of idle credit to keep (0 = strict)")
	cmd.Flags().Int("callers", 1, "Concurrent callers sharing the limiter")
	cmd.Flags().Int64P("takes", "n", 0, "Total takes across all callers")
	cmd.Flags().DurationP("duration", "d", 0, "Run length (e.g., 30s, 5m)")
	cmd.Flags().Duration("work", 0, "Simulated work per take")
	cmd.Flags().StringArray("threshold", nil, "Threshold expression, e.g. '$.intervals.min >= 9ms' (repeatable)")

	cmd.Flags().StringP("format", "f", "text", "Result format: text, json, yaml")
	cmd.Flags().Bool("json", false, "Print the result as JSON (same as --format json)")
	cmd.Flags().Bool("yaml", false, "Print the result as YAML (same as --format yaml)")
	cmd.Flags().StringP("output", "o", "", "Also write the result to this file (.json or .yaml)")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.Flags().BoolP("quiet", "q", false, "Only print PASSED or FAILED")
	cmd.Flags().BoolP("verbose", "v", false, "Log diagnostics to stderr")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g., :9090)")

	return cmd
}

// runDrip executes the run command.
func runDrip(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	yamlOutput, _ := cmd.Flags().GetBool("yaml")
	outputPath, _ := cmd.Flags().GetString("output")
	noColor, _ := cmd.Flags().GetBool("no-color")
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	format, err := resultFormat(cmd, jsonOutput, yamlOutput)
	if err != nil {
		return err
	}

	var profile *config.Profile
	if configFile != "" {
		profile, err = config.LoadProfile(configFile)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
	} else {
		profile = &config.Profile{}
	}
	if err := applyFlags(cmd, profile); err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	logger := newLogger(verbose, cmd.ErrOrStderr())

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  stdout,
		Quiet:   quiet,
		NoColor: noColor,
	})

	opts := []engine.Option{engine.WithLogger(logger)}

	var collector *metrics.Collector
	if metricsAddr != "" {
		strategy := profile.Limiter.Strategy
		if strategy == "" {
			strategy = ratelimit.StrategyLeakyBucket
		}
		collector = metrics.NewCollector(strategy, nil)
		opts = append(opts, engine.WithCollector(collector))
	}

	eng, err := engine.NewEngine(profile, opts...)
	if err != nil {
		return err
	}

	if collector != nil {
		srv, addr, err := serveMetrics(metricsAddr, collector)
		if err != nil {
			return err
		}
		logger.Info("serving metrics", "addr", addr)
		defer shutdownServer(srv)
	}

	if format == output.FormatText {
		console.PrintHeader(eng.GetProfile())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	result, runErr := runWithProgress(ctx, runControl{
		engine:   eng,
		console:  console,
		logger:   logger,
		progress: format == output.FormatText && !quiet,
		signals:  signals,
		abort:    cancel,
	})
	if result == nil {
		return runErr
	}

	if format == output.FormatText {
		console.PrintSummary(result)
	} else if err := output.WriteResult(stdout, result, format); err != nil {
		return err
	}

	if outputPath != "" {
		if err := writeResultFile(outputPath, result); err != nil {
			return err
		}
		logger.Info("wrote result", "path", outputPath)
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return errThresholdsFailed
	}
	return nil
}

// applyFlags copies explicitly set flags into the profile. Without a
// profile file every limiter and load field comes from flags and their
// defaults.
func applyFlags(cmd *cobra.Command, p *config.Profile) error {
	flags := cmd.Flags()
	fromFile := flags.Changed("config")
	set := func(name string) bool { return !fromFile || flags.Changed(name) }

	if set("strategy") {
		p.Limiter.Strategy, _ = flags.GetString("strategy")
	}
	if set("rate") {
		p.Limiter.Rate, _ = flags.GetInt("rate")
	}
	if set("per") {
		per, _ := flags.GetDuration("per")
		p.Limiter.Per = config.Duration(per)
	}
	if set("slack") {
		slack, _ := flags.GetInt("slack")
		p.Limiter.Slack = &slack
	}
	if set("callers") {
		p.Load.Callers, _ = flags.GetInt("callers")
	}
	if set("takes") {
		p.Load.Takes, _ = flags.GetInt64("takes")
	}
	if set("duration") {
		d, _ := flags.GetDuration("duration")
		p.Load.Duration = config.Duration(d)
	}
	if set("work") {
		w, _ := flags.GetDuration("work")
		p.Load.Work = config.Duration(w)
	}
	if flags.Changed("threshold") {
		th, _ := flags.GetStringArray("threshold")
		p.Thresholds = append(p.Thresholds, th...)
	}

	if !fromFile && p.Limiter.Rate == 0 && p.Limiter.Strategy != ratelimit.StrategyUnlimited {
		return fmt.Errorf("either --config or --rate is required")
	}
	return nil
}

// resultFormat resolves --format against the --json and --yaml shortcuts.
func resultFormat(cmd *cobra.Command, jsonOutput, yamlOutput bool) (output.Format, error) {
	if jsonOutput && yamlOutput {
		return "", fmt.Errorf("--json and --yaml are mutually exclusive")
	}

	name, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(name)
	if err != nil {
		return "", err
	}

	shortcut := format
	switch {
	case jsonOutput:
		shortcut = output.FormatJSON
	case yamlOutput:
		shortcut = output.FormatYAML
	}
	if cmd.Flags().Changed("format") && shortcut != format {
		return "", fmt.Errorf("--format %s conflicts with --%s", format, shortcut)
	}
	return shortcut, nil
}

// runControl is what runWithProgress needs to drive and interrupt a run.
type runControl struct {
	engine   *engine.Engine
	console  *output.Console
	logger   *slog.Logger
	progress bool
	signals  <-chan os.Signal
	abort    context.CancelFunc
}

// runWithProgress runs the engine, printing a progress line every second
// when enabled. The first signal stops the run gracefully; the second
// cancels it.
func runWithProgress(ctx context.Context, rc runControl) (*engine.Result, error) {
	type outcome struct {
		result *engine.Result
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		result, err := rc.engine.Run(ctx)
		done <- outcome{result, err}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	interrupts := &interruptHandler{
		logger: rc.logger,
		stop: func() {
			go func() {
				if err := rc.engine.Stop(context.Background()); err != nil {
					rc.logger.Warn("graceful stop failed", "error", err)
				}
			}()
		},
		abort: rc.abort,
	}

	for {
		select {
		case o := <-done:
			return o.result, o.err
		case sig := <-rc.signals:
			interrupts.handle(sig)
		case <-ticker.C:
			if rc.progress && rc.engine.IsRunning() {
				rc.console.PrintProgress(rc.engine.GetProgress(), takesSoFar(rc.engine), time.Since(start))
			}
		}
	}
}

// interruptHandler escalates repeated signals: the first stops, any later
// one aborts.
type interruptHandler struct {
	logger *slog.Logger
	stop   func()
	abort  func()
	count  int
}

func (h *interruptHandler) handle(sig os.Signal) {
	h.count++
	if h.count > 1 {
		h.logger.Warn("aborting run", "signal", sig.String())
		h.abort()
		return
	}
	h.logger.Info("stopping run", "signal", sig.String())
	h.stop()
}

func takesSoFar(eng *engine.Engine) int64 {
	if sp, ok := eng.Limiter().(ratelimit.StatsProvider); ok {
		return sp.Stats().Takes
	}
	return 0
}

// newLogger returns a text logger on w at debug level when verbose, and a
// logger that discards everything otherwise.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// serveMetrics starts an HTTP server exposing the collector at /metrics.
// It returns once the listener is bound, with the address actually used.
func serveMetrics(addr string, collector *metrics.Collector) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv, ln.Addr().String(), nil
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// writeResultFile writes the result document, choosing YAML for .yaml and
// .yml paths and JSON otherwise.
func writeResultFile(path string, result *engine.Result) error {
	format := output.FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = output.FormatYAML
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := output.WriteResult(f, result, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
