// Command contractgraph extracts structured records from a directory of
// legal contracts and answers questions about them.
//
// Usage:
//
//	contractgraph ingest -config config.yaml -dir ./contracts -out ./output
//	contractgraph ask -config config.yaml "Which contracts are governed by California law?"
//	contractgraph serve -config config.yaml -addr :8080
//	contractgraph eval -config config.yaml -dataset cases.yaml
//
// Exit codes: 0 success, 1 one or more documents failed, 2 configuration
// or connectivity failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brunobiangulo/contractgraph"
	"github.com/brunobiangulo/contractgraph/eval"
)

const (
	exitOK      = 0
	exitPartial = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitConfig
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ingest":
		return runIngest(rest, stdout, stderr)
	case "ask":
		return runAsk(rest, stdout, stderr)
	case "serve":
		return runServe(rest, stderr)
	case "eval":
		return runEval(rest, stdout, stderr)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr)
		return exitConfig
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: contractgraph <command> [flags]

commands:
  ingest   extract contracts from a directory and write output files
  ask      answer a question from the stored corpus
  serve    serve POST /ask over HTTP and retry missing embeddings on a schedule
  eval     score answers against a dataset of questions`)
}

// loadConfig reads the config file when given, then applies environment
// overrides and installs the logger.
func loadConfig(path string, stderr io.Writer) (contractgraph.Config, error) {
	cfg := contractgraph.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = contractgraph.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	providerKeyFallback(&cfg.Chat)
	providerKeyFallback(&cfg.Embedding)
	setupLogging(cfg, stderr)
	return cfg, nil
}

// providerKeyFallback reads well-known provider API key variables.
func providerKeyFallback(c *contractgraph.LLMConfig) {
	if c.APIKey != "" {
		return
	}
	switch c.Provider {
	case "openai":
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	case "groq":
		c.APIKey = os.Getenv("GROQ_API_KEY")
	case "openrouter":
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "gemini":
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

func setupLogging(cfg contractgraph.Config, w io.Writer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.LogFormat, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// exitCode maps an engine error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, contractgraph.ErrInvalidConfig),
		errors.Is(err, contractgraph.ErrSinkUnreachable),
		errors.Is(err, contractgraph.ErrModelUnreachable),
		errors.Is(err, contractgraph.ErrNoDocuments),
		errors.Is(err, os.ErrNotExist):
		return exitConfig
	default:
		return exitPartial
	}
}

func runIngest(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML or JSON)")
	dir := fs.String("dir", "", "Corpus directory")
	out := fs.String("out", "", "Output directory (overrides output_dir)")
	workers := fs.Int("workers", 0, "Parallel documents (overrides workers)")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if *dir == "" && fs.NArg() > 0 {
		*dir = fs.Arg(0)
	}
	if *dir == "" {
		fmt.Fprintln(stderr, "ingest: -dir is required")
		return exitConfig
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	if *out != "" {
		cfg.OutputDir = *out
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	// First signal stops new documents; in-flight ones finish.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := contractgraph.New(ctx, cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		return exitCode(err)
	}
	defer eng.Close()

	summary, err := eng.IngestDir(ctx, *dir)
	if summary == nil {
		slog.Error("ingest failed", "dir", *dir, "error", err)
		return exitCode(err)
	}
	if werr := eng.WriteOutputs(cfg.OutputDir, summary); werr != nil {
		slog.Error("writing outputs", "dir", cfg.OutputDir, "error", werr)
		return exitPartial
	}

	fmt.Fprintf(stdout, "run %s: %d documents, %d succeeded, %d partial, %d failed, %d skipped; output in %s\n",
		summary.RunID, summary.Total, summary.Succeeded, summary.Partial, summary.Failed, summary.Skipped, cfg.OutputDir)
	for _, d := range summary.Documents {
		if d.Outcome == contractgraph.OutcomeFailed {
			fmt.Fprintf(stdout, "  failed %s (%s): %s\n", d.ID, d.ErrorKind, d.Error)
		}
	}

	if err != nil {
		slog.Error("ingest incomplete", "error", err)
		return exitCode(err)
	}
	return summary.ExitCode()
}

func runAsk(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML or JSON)")
	asJSON := fs.Bool("json", false, "Print the full answer as JSON")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(stderr, "ask: a question is required")
		return exitConfig
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	cfg.Neo4j = nil
	if cfg.StorePath == "" {
		slog.Warn("ask: store_path is not set, the corpus is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := contractgraph.New(ctx, cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		return exitCode(err)
	}
	defer eng.Close()

	ans, err := eng.Ask(ctx, question)
	if err != nil {
		slog.Error("ask failed", "error", err)
		return exitCode(err)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(ans)
		return exitOK
	}
	fmt.Fprintln(stdout, ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Fprintf(stdout, "\nCitations: %s\n", strings.Join(ans.Citations, ", "))
	}
	for _, s := range ans.Sources {
		fmt.Fprintf(stdout, "  %-24s score=%.3f %s\n", s.ContractID, s.Score, s.ContractType)
	}
	return exitOK
}

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML or JSON)")
	addr := fs.String("addr", "", "Listen address (overrides addr)")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	cfg.Neo4j = nil

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := contractgraph.New(ctx, cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		return exitCode(err)
	}
	defer eng.Close()

	sched := cron.New()
	if cfg.RetrySchedule != "" {
		_, err := sched.AddFunc(cfg.RetrySchedule, func() {
			n, err := eng.RetryEmbeddings(ctx)
			if err != nil {
				slog.Warn("scheduled embedding retry incomplete", "updated", n, "error", err)
				return
			}
			if n > 0 {
				slog.Info("scheduled embedding retry", "updated", n)
			}
		})
		if err != nil {
			slog.Error("invalid retry schedule", "schedule", cfg.RetrySchedule, "error", err)
			return exitConfig
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      newRouter(eng, os.Getenv("CONTRACTGRAPH_API_KEY"), os.Getenv("CONTRACTGRAPH_CORS_ORIGINS")),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "contracts", len(eng.Contracts()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			return exitConfig
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return exitOK
}

func runEval(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML or JSON)")
	datasetPath := fs.String("dataset", "", "Dataset file (YAML or JSON)")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	minPass := fs.Float64("min-pass", 0, "Exit 1 when the pass rate (0-1) is below this")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if *datasetPath == "" {
		fmt.Fprintln(stderr, "eval: -dataset is required")
		return exitConfig
	}
	ds, err := eval.LoadDataset(*datasetPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	cfg.Neo4j = nil

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := contractgraph.New(ctx, cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		return exitCode(err)
	}
	defer eng.Close()

	rep, err := eval.NewEvaluator(eng).Run(ctx, ds)
	if err != nil {
		slog.Error("eval failed", "error", err)
		return exitPartial
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
	} else {
		fmt.Fprint(stdout, eval.FormatReport(rep))
	}
	if rep.Total > 0 && float64(rep.Passed)/float64(rep.Total) < *minPass {
		return exitPartial
	}
	return exitOK
}
