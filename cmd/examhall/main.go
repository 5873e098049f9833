package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/event"
	"github.com/pavelanni/examhall/internal/handler"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/llm"
	"github.com/pavelanni/examhall/internal/metrics"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/service"
	"github.com/pavelanni/examhall/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "read .env: %v\n", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examhall",
		Short: "Online multiple-choice exam server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examhall --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStorageFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("storage", "sqlite", "Storage backend (sqlite, json)")
	f.String("db", "examhall.db", "SQLite database path")
	f.String("data-file", "data.json", "JSON data file path for the json backend")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	addStorageFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Paths to questions JSON files to seed (repeatable)")
	f.String("admin-password", "", "Initial admin password (or set EXAMHALL_ADMIN_PASSWORD)")
	f.String("jwt-secret", "", "Secret for signing bearer tokens (or set EXAMHALL_JWT_SECRET)")
	f.Duration("token-ttl", auth.DefaultTokenTTL, "Lifetime of issued bearer tokens")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exams)")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for question drafting (empty disables drafting)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("amqp-url", "", "AMQP broker URL for domain events (empty disables events)")
	f.String("amqp-exchange", "examhall.events", "AMQP topic exchange for domain events")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results and analytics as JSON",
		RunE:  runExport,
	}
	addStorageFlags(cmd)
	f := cmd.Flags()
	f.String("exam-id", "", "Only export results of this exam")
	f.String("student-id", "", "Only export results of this student")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func setupLogging(v *viper.Viper) {
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

	v.SetEnvPrefix("EXAMHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examhall")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examhall")
	v.AddConfigPath("/etc/examhall")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openStore loads the records from the configured backend. Unreadable data
// is a *store.LoadError and aborts startup.
func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	var (
		backend store.Backend
		source  string
	)
	switch strings.ToLower(v.GetString("storage")) {
	case "sqlite", "":
		source = v.GetString("db")
		db, err := store.NewSQLite(source)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		backend = db
	case "json":
		source = v.GetString("data-file")
		backend = store.NewJSONFile(source)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", v.GetString("storage"))
	}

	st, err := store.Open(ctx, backend, source)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return st, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer st.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var publisher event.Publisher = event.Nop{}
	if url := v.GetString("amqp-url"); url != "" {
		p, err := event.NewAMQPPublisher(url, v.GetString("amqp-exchange"))
		if err != nil {
			return fmt.Errorf("connect event broker: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	svc := service.New(st, service.WithPublisher(publisher))

	// Seed default admin user if it does not exist.
	created, err := svc.SeedAdmin(ctx, v.GetString("admin-password"))
	if err != nil {
		return fmt.Errorf("seed admin: %w (set --admin-password or EXAMHALL_ADMIN_PASSWORD)", err)
	}
	if created {
		slog.Info("seeded default admin user", "username", model.ReservedAdmin)
	}

	if err := seedQuestions(ctx, svc, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	secret := v.GetString("jwt-secret")
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		slog.Warn("no jwt-secret configured, using a random one; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokens(secret, v.GetDuration("token-ttl"))
	if err != nil {
		return err
	}

	var drafter handler.Drafter
	if url := v.GetString("llm-url"); url != "" {
		client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		drafter = client
		slog.Info("question drafting enabled", "url", url, "model", v.GetString("llm-model"))
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	cfg := model.ServerConfig{
		BasePath: basePath,
		TokenTTL: tokens.TTL(),
		Lang:     lang,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	handler.New(svc, tokens, drafter, cfg).Mount(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"storage", v.GetString("storage"),
			"lang", cfg.Lang,
			"token_ttl", cfg.TokenTTL,
			"base_path", cfg.BasePath,
			"drafting", drafter != nil,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down HTTP server", "error", err)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	st, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer st.Close()

	export := service.New(st).Export(v.GetString("exam-id"), v.GetString("student-id"))

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

	slog.Info("exported results", "count", len(export.Results), "output", outPath)
	return nil
}

// seedQuestions imports questions from JSON files. Questions whose text is
// already stored are skipped, so restarting with the same files is a no-op.
func seedQuestions(ctx context.Context, svc *service.Service, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var questions []model.QuestionImport
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		existing := make(map[string]bool)
		for _, q := range svc.ListQuestions() {
			existing[q.Text] = true
		}
		var fresh []model.QuestionImport
		for _, q := range questions {
			if !existing[strings.TrimSpace(q.Text)] {
				fresh = append(fresh, q)
			}
		}

		hash := sha256sum(data)
		if len(fresh) == 0 {
			slog.Info("questions file already imported, skipping", "path", path, "sha256", hash)
			continue
		}
		if _, err := svc.ImportQuestions(ctx, fresh); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "sha256", hash, "count", len(fresh), "skipped", len(questions)-len(fresh))
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
