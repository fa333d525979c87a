package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examforge/internal/exam"
	"github.com/pavelanni/examforge/internal/generator"
	"github.com/pavelanni/examforge/internal/grading"
	"github.com/pavelanni/examforge/internal/handler"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/planner"
	"github.com/pavelanni/examforge/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examforge",
		Short: "AI-driven exam generation and grading server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examforge --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examforge.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", 2*time.Minute, "Per-call LLM timeout (0 = none)")
	f.Float32("temperature", 0.3, "LLM sampling temperature")
	f.Int("workers", exam.DefaultWorkers, "Concurrent generation and grading calls")
	f.Int("retry-attempts", generator.DefaultAttempts, "Generation attempts per question")
	f.Duration("retry-pause", generator.DefaultPause, "Pause between generation attempts")
	f.String("prompt-variant", string(prompts.VariantStandard), "Grading prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Feedback language (en, zh)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examforge.db", "SQLite database path")
	f.String("exam-id", "", "Exam identifier for output (required)")
	f.String("subject", "", "Subject name for output (required)")
	f.String("date", "", "Exam date in YYYY-MM-DD format (required)")
	f.String("prompt-variant", "standard", "Prompt variant included in export metadata")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exam-id")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examforge")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examforge")
	v.AddConfigPath("/etc/examforge")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.VariantStandard)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		llm.WithTemperature(float32(v.GetFloat64("temperature"))),
		llm.WithTimeout(v.GetDuration("llm-timeout")),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	workers := v.GetInt("workers")
	gen := generator.New(llmClient,
		generator.WithAttempts(v.GetInt("retry-attempts")),
		generator.WithPause(v.GetDuration("retry-pause")),
	)
	generation := exam.NewSession(planner.New(llmClient), gen, db, exam.WithWorkers(workers))
	if snap, ok := generation.Resume(); ok {
		slog.Info("resumed generation snapshot", "phase", snap.Phase, "progress", snap.Progress)
	}
	engine := grading.New(llmClient, prompts.Variant(promptVariant))

	h := handler.New(db, generation, engine, workers)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"workers", workers,
		"prompt_variant", promptVariant,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.ExamExport{
		ExamID:        v.GetString("exam-id"),
		Subject:       v.GetString("subject"),
		Date:          v.GetString("date"),
		PromptVariant: v.GetString("prompt-variant"),
		Sessions:      results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
