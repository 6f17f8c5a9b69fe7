package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/johnayoung/ai-council/internal/config"
	"github.com/johnayoung/ai-council/internal/council"
	"github.com/johnayoung/ai-council/internal/mcpserver"
	"github.com/johnayoung/ai-council/internal/output"
	"github.com/johnayoung/ai-council/internal/runner"
	"github.com/johnayoung/ai-council/internal/telemetry"
	"github.com/johnayoung/ai-council/internal/ui"
)

// Version information set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliConfig struct {
	configPath string
	context    string
	file       string
	output     string
	dataDir    string
	seed       *uint64
	serve      bool
	quiet      bool
	json       bool
	noSave     bool
	debug      bool
	args       []string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	file, err := config.Load(cfg.configPath)
	if err != nil {
		return err
	}

	// stdout carries results and the MCP transport, so logs go to stderr.
	ctx = telemetry.Context(ctx, telemetry.LogOptions{
		Output: os.Stderr,
		JSON:   cfg.serve || !ui.IsTerminal(os.Stderr),
		Debug:  cfg.debug || file.Debug(),
	})
	logger := telemetry.NewClueLogger()

	councilCfg := file.Council()
	if cfg.seed != nil {
		councilCfg.Seed = cfg.seed
	}
	opts := []council.Option{
		council.WithMiddleware(file.Middleware(logger)...),
		council.WithLogger(logger),
		council.WithMetrics(telemetry.NewOTELMetrics()),
	}

	if cfg.serve {
		c, err := council.New(councilCfg, opts...)
		if err != nil {
			return err
		}
		return mcpserver.New(c, getVersion(), mcpserver.WithLogger(logger)).Run(ctx)
	}

	question, err := getPrompt(cfg.args, cfg.file)
	if err != nil {
		return err
	}
	req := council.Request{Context: cfg.context, Question: question}

	// Progress goes to stderr even when -output is set.
	showUI := ui.IsTerminal(os.Stderr) && !cfg.quiet && !cfg.json
	startTime := time.Now()

	// The display needs the consulted members up front; a selection error
	// surfaces from Consult.
	members, _ := runner.Select(councilCfg.Models, councilCfg.MaxModels)
	progress := ui.NewProgress(os.Stderr, members, !showUI)
	opts = append(opts, council.WithCallbacks(progress.Callbacks()))

	c, err := council.New(councilCfg, opts...)
	if err != nil {
		if cfg.json {
			_ = output.Write(os.Stdout, output.FromError(req, err))
		}
		return err
	}

	if showUI {
		ui.PrintHeader(os.Stderr, question)
		ui.PrintPhase(os.Stderr, "Consulting the council...")
		fmt.Fprintln(os.Stderr)
	}

	progress.Start()
	outcome, consultErr := c.Consult(ctx, req)
	progress.Stop()

	var report output.Report
	if consultErr != nil {
		report = output.FromError(req, consultErr)
	} else {
		report = output.FromOutcome(req, outcome)
	}

	if err := emit(cfg, report, outcome, showUI, startTime); err != nil {
		return err
	}
	if consultErr != nil {
		return fmt.Errorf("consultation: %w", consultErr)
	}
	return nil
}

// emit writes the report: to -output when given, auto-saved under the data
// directory otherwise, and either pretty printed or as JSON on stdout.
func emit(cfg *cliConfig, report output.Report, outcome *council.Outcome, showUI bool, startTime time.Time) error {
	switch {
	case cfg.output != "":
		w, err := os.Create(cfg.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer w.Close()
		if err := output.Write(w, report); err != nil {
			return err
		}
		if showUI {
			ui.PrintSuccess(os.Stderr, fmt.Sprintf("Report written to %s", cfg.output))
		}
	case !cfg.json && !cfg.noSave:
		runDir, err := output.Save(cfg.dataDir, report)
		if err != nil {
			// Non-fatal, the report is still printed below.
			if showUI {
				ui.PrintError(os.Stderr, fmt.Sprintf("Failed to save run: %v", err))
			}
		} else if showUI {
			defer ui.PrintSuccess(os.Stderr, fmt.Sprintf("Run saved to %s", runDir))
		}
	}

	if cfg.json || !showUI {
		if cfg.output != "" && !cfg.json {
			return nil
		}
		return output.Write(os.Stdout, report)
	}

	fmt.Fprintln(os.Stderr)
	if outcome == nil {
		ui.PrintError(os.Stderr, report.Error)
		for _, r := range report.Responses {
			if r.Status != output.StatusSuccess {
				ui.PrintError(os.Stderr, fmt.Sprintf("%s: %s (%s)", r.CodeName, r.FailureKind, r.FailureDetail))
			}
		}
		return nil
	}

	succeeded, failed := 0, 0
	for _, r := range outcome.Results {
		if r.OK() {
			succeeded++
			ui.PrintModelResponse(os.Stderr, r)
			continue
		}
		failed++
	}
	ui.PrintConsensus(os.Stderr, outcome.SynthesizerCodeName, outcome.FinalAnswer)

	ui.PrintSummary(os.Stderr, len(outcome.Results), succeeded, failed, time.Since(startTime))
	if outcome.Degraded {
		fmt.Fprintln(os.Stderr)
		ui.PrintError(os.Stderr, "Synthesis failed: "+outcome.SynthesisError)
	}
	for _, r := range outcome.Results {
		if !r.OK() {
			ui.PrintError(os.Stderr, fmt.Sprintf("%s: %s (%s)", r.Spec.CodeName, r.Failure.Kind, r.Failure.Detail))
		}
	}
	return nil
}

// getVersion returns the version string, using build info as fallback.
func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func parseFlags() (*cliConfig, error) {
	var (
		cfg         cliConfig
		seed        string
		showVersion bool
	)

	flag.StringVar(&cfg.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	flag.StringVar(&cfg.context, "context", "", "Background information for the question")
	flag.StringVar(&cfg.file, "file", "", "Read the question from file")
	flag.StringVar(&cfg.output, "output", "", "Write the JSON report to a specific file (overrides auto-save)")
	flag.StringVar(&cfg.dataDir, "data-dir", "data", "Directory for auto-saved runs")
	flag.StringVar(&seed, "seed", "", "Seed for reproducible synthesizer selection")
	flag.BoolVar(&cfg.serve, "serve", false, "Serve the ai_council tool over MCP stdio")
	flag.BoolVar(&cfg.quiet, "quiet", false, "Suppress progress output")
	flag.BoolVar(&cfg.quiet, "q", false, "Suppress progress output (shorthand)")
	flag.BoolVar(&cfg.json, "json", false, "Output the JSON report to stdout (no interactive display, no auto-save)")
	flag.BoolVar(&cfg.noSave, "no-save", false, "Don't auto-save results to the data directory")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("ai-council %s\n", getVersion())
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if seed != "" {
		n, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid -seed %q: %w", seed, err)
		}
		cfg.seed = &n
	}
	cfg.args = flag.Args()
	return &cfg, nil
}

func getPrompt(args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading question file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	// Stdin, unless it is a terminal.
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.Join(lines, "\n"), nil
	}

	return "", fmt.Errorf("no question provided: use positional arguments, -file, or pipe to stdin")
}
