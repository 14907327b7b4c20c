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
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/learnmate/internal/handler"
	appI18n "github.com/pavelanni/learnmate/internal/i18n"
	"github.com/pavelanni/learnmate/internal/llm"
	"github.com/pavelanni/learnmate/internal/model"
	"github.com/pavelanni/learnmate/internal/planner"
	"github.com/pavelanni/learnmate/internal/quiz"
	"github.com/pavelanni/learnmate/internal/resume"
	"github.com/pavelanni/learnmate/internal/store"
)

func main() {
	// API keys may live in a local .env file.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "learnmate",
		Short: "AI study planner, résumé analyzer and career quiz",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `learnmate --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "learnmate.db", "SQLite database path")
	f.StringP("lang", "l", "en", "UI language (en, ru, auto)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /learn)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Duration("session-ttl", 30*24*time.Hour, "Forget browser sessions idle for longer than this")
	f.Duration("cleanup-interval", time.Hour, "How often idle sessions are removed")

	f.String("openai-url", "http://localhost:1234/v1", "OpenAI-compatible API base URL (LM Studio, Ollama /v1, OpenAI)")
	f.String("openai-key", "lm-studio", "API key for the OpenAI-compatible endpoint")
	f.String("openai-model", "llama-3.2-3b-instruct", "Model name for the OpenAI-compatible endpoint")
	f.String("gemini-key", "", "Gemini API key (or set LEARNMATE_GEMINI_KEY)")
	f.String("gemini-model", "gemini-pro", "Gemini model name")
	f.String("ollama-url", "http://localhost:11434", "Ollama server URL")
	f.String("ollama-model", "llama3.2", "Ollama model name")

	f.String("planner-backend", string(llm.BackendGemini), "LLM backend for the study planner (openai, gemini, ollama)")
	f.String("resume-backend", string(llm.BackendOpenAI), "LLM backend for the résumé analyzer")
	f.String("quiz-backend", string(llm.BackendGemini), "LLM backend for the quiz")

	f.Int("max-subjects", 10, "Maximum subjects per study plan")
	f.Int("recommendations", 3, "Study resources requested per subject")
	f.Int64("max-upload-mb", 10, "Maximum résumé upload size in MB")
	f.IntP("quiz-questions", "n", 10, "Questions per quiz")

	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "learnmate.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("LEARNMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("learnmate")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/learnmate")
	v.AddConfigPath("/etc/learnmate")
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

// openBackends creates one completer per feature. Features that share a
// backend share the client.
func openBackends(ctx context.Context, v *viper.Viper) (map[string]llm.Completer, error) {
	cfg := llm.Config{
		OpenAIURL:   v.GetString("openai-url"),
		OpenAIKey:   v.GetString("openai-key"),
		OpenAIModel: v.GetString("openai-model"),
		GeminiKey:   v.GetString("gemini-key"),
		GeminiModel: v.GetString("gemini-model"),
		OllamaURL:   v.GetString("ollama-url"),
		OllamaModel: v.GetString("ollama-model"),
	}

	opened := make(map[llm.Backend]llm.Completer)
	out := make(map[string]llm.Completer)
	for _, feature := range []string{"planner", "resume", "quiz"} {
		b, err := llm.ParseBackend(v.GetString(feature + "-backend"))
		if err != nil {
			return nil, fmt.Errorf("%s backend: %w", feature, err)
		}
		c, ok := opened[b]
		if !ok {
			if c, err = llm.Open(ctx, b, cfg); err != nil {
				return nil, fmt.Errorf("open %s backend for %s: %w", b, feature, err)
			}
			opened[b] = c
			if p, ok := c.(*llm.Client); ok {
				if err := p.Ping(ctx); err != nil {
					slog.Warn("LLM endpoint not reachable", "backend", b, "url", cfg.OpenAIURL, "error", err)
				} else {
					slog.Info("LLM endpoint OK", "backend", b, "url", cfg.OpenAIURL, "model", cfg.OpenAIModel)
				}
			}
		}
		slog.Info("LLM backend configured", "feature", feature, "backend", b)
		out[feature] = c
	}
	return out, nil
}

func cleanupSessions(h *handler.Handler, ttl time.Duration) error {
	n, err := h.CleanupSessions(time.Now().Add(-ttl))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("removed idle sessions", "count", n, "ttl", ttl)
	}
	return nil
}

// cleanupLoop removes idle sessions every interval until ctx is done.
func cleanupLoop(ctx context.Context, h *handler.Handler, ttl, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cleanupSessions(h, ttl); err != nil {
				slog.Error("session cleanup failed", "error", err)
			}
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ttl := v.GetDuration("session-ttl")

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	slog.Debug("languages available", "tags", appI18n.Supported())

	backends, err := openBackends(ctx, v)
	if err != nil {
		return err
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	appCfg := model.AppConfig{
		BasePath:           basePath,
		SecureCookies:      v.GetBool("secure-cookies"),
		MaxSubjects:        v.GetInt("max-subjects"),
		MaxUploadBytes:     v.GetInt64("max-upload-mb") << 20,
		QuizQuestions:      v.GetInt("quiz-questions"),
		RecommendationsPer: v.GetInt("recommendations"),
		SessionTTL:         ttl,
	}

	h, err := handler.New(
		db,
		planner.New(backends["planner"], appCfg.RecommendationsPer),
		resume.NewAnalyzer(backends["resume"]),
		quiz.New(backends["quiz"], appCfg.QuizQuestions),
		appCfg,
	)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	if ttl > 0 {
		if err := cleanupSessions(h, ttl); err != nil {
			return fmt.Errorf("cleanup sessions: %w", err)
		}
		go cleanupLoop(ctx, h, ttl, v.GetDuration("cleanup-interval"))
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"max_subjects", appCfg.MaxSubjects,
		"quiz_questions", appCfg.QuizQuestions,
		"max_upload_bytes", appCfg.MaxUploadBytes,
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

	export, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
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

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported sessions", "count", len(export.Sessions))
	return nil
}
