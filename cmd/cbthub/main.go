package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mshcbt/cbthub/internal/access"
	"github.com/mshcbt/cbthub/internal/activation"
	"github.com/mshcbt/cbthub/internal/bank"
	"github.com/mshcbt/cbthub/internal/exam"
	"github.com/mshcbt/cbthub/internal/handler"
	appI18n "github.com/mshcbt/cbthub/internal/i18n"
	"github.com/mshcbt/cbthub/internal/llm"
	"github.com/mshcbt/cbthub/internal/model"
	"github.com/mshcbt/cbthub/internal/store"
)

const initialCodeBatch = 10

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cbthub",
		Short: "Mock JAMB/WAEC computer-based test server",
	}

	serve := serveCmd()
	root.AddCommand(serve, codesCmd(), importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `cbthub --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "cbthub.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("questions-dir", "q", "questions", "Directory of <format>_<subject>.json question files")
	f.Duration("trial-duration", 72*time.Hour, "Length of the free trial")
	f.Duration("session-ttl", 3*time.Hour, "Lifetime of an exam session")
	f.Duration("sweep-interval", 6*time.Hour, "How often expired sessions are deleted (0 disables)")
	f.Int("code-days", 150, "Validity of issued activation codes in days (0 = no expiry)")
	f.String("admin-email", "admin@cbthub.local", "Email of the seeded admin account")
	f.String("admin-password", "", "Initial admin password (or set CBTHUB_ADMIN_PASSWORD)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.StringP("lang", "l", "en", "Default message language (en, fr)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for answer explanations (empty disables)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Float64("redeem-rate", 0.2, "Activation attempts per second allowed per account (0 disables limiting)")
	f.Int("redeem-burst", 5, "Activation attempts allowed in a burst per account")
	return cmd
}

func codesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage activation codes",
	}

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate new activation codes",
		RunE:  runCodesGenerate,
	}
	addCommonFlags(gen)
	gen.Flags().IntP("count", "n", 1, "Number of codes to generate")
	gen.Flags().Int("code-days", 150, "Validity in days (0 = no expiry)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List activation codes",
		RunE:  runCodesList,
	}
	addCommonFlags(list)

	cmd.AddCommand(gen, list)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import question files into the database",
		Long:  "Import the given question files, or every file in --questions-dir when none are given.",
		RunE:  runImport,
	}
	addCommonFlags(cmd)
	cmd.Flags().StringP("questions-dir", "q", "questions", "Directory of <format>_<subject>.json question files")
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

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CBTHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("cbthub")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/cbthub")
	v.AddConfigPath("/etc/cbthub")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func codeValidity(v *viper.Viper) time.Duration {
	return time.Duration(v.GetInt("code-days")) * 24 * time.Hour
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(ctx, db, v.GetString("admin-email"), v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Load questions from the questions directory.
	rep, err := bank.ImportDir(ctx, db, v.GetString("questions-dir"))
	if err != nil {
		return fmt.Errorf("import questions: %w", err)
	}
	slog.Info("question import finished",
		"files", rep.Files,
		"imported", rep.Imported,
		"unchanged", rep.Unchanged,
		"changed_skipped", rep.Changed)

	pool, err := exam.LoadPool(ctx, db)
	if err != nil {
		return fmt.Errorf("load question pool: %w", err)
	}
	if pool.Size() == 0 {
		slog.Warn("question pool is empty; exams cannot be assembled until questions are imported")
	}

	ledger := activation.NewLedger(db, nil)
	if err := seedCodes(ctx, db, ledger, codeValidity(v)); err != nil {
		return fmt.Errorf("seed activation codes: %w", err)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create LLM client when configured.
	var explainer handler.Explainer
	if url := v.GetString("llm-url"); url != "" {
		client := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := client.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.Warn("LLM endpoint unreachable; explanations disabled", "url", url, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
			explainer = client
		}
	}

	gate := access.NewGate(db, v.GetDuration("trial-duration"), nil)
	exams := exam.NewService(pool, db, gate, exam.Config{SessionTTL: v.GetDuration("session-ttl")})

	go exam.RunSweeper(ctx, db, v.GetDuration("sweep-interval"))

	h := handler.New(db, exams, gate, ledger, explainer, handler.Config{
		SecureCookies: v.GetBool("secure-cookies"),
		CodeValidity:  codeValidity(v),
		RedeemRate:    rate.Limit(v.GetFloat64("redeem-rate")),
		RedeemBurst:   v.GetInt("redeem-burst"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"pool_size", pool.Size(),
		"trial", v.GetDuration("trial-duration"),
		"session_ttl", v.GetDuration("session-ttl"),
		"explanations", explainer != nil,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func runCodesGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n := v.GetInt("count")
	if n < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	codes, err := activation.NewLedger(db, nil).Issue(cmd.Context(), n, codeValidity(v))
	if err != nil {
		return err
	}
	for _, c := range codes {
		fmt.Fprintln(cmd.OutOrStdout(), c.Code)
	}
	return nil
}

func runCodesList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	codes, err := db.ListActivationCodes(cmd.Context())
	if err != nil {
		return fmt.Errorf("list codes: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tCREATED\tEXPIRES\tUSED BY")
	for _, c := range codes {
		expires, usedBy := "never", "-"
		if c.ExpiresAt != nil {
			expires = c.ExpiresAt.Format(time.DateOnly)
		}
		if c.UsedBy != nil {
			usedBy = fmt.Sprint(*c.UsedBy)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Code, c.CreatedAt.Format(time.DateOnly), expires, usedBy)
	}
	return tw.Flush()
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var rep bank.Report
	if len(args) == 0 {
		rep, err = bank.ImportDir(cmd.Context(), db, v.GetString("questions-dir"))
		if err != nil {
			return err
		}
	} else {
		for _, path := range args {
			if err := bank.ImportFile(cmd.Context(), db, path, &rep); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "files: %d, imported: %d, unchanged: %d, changed (skipped): %d, malformed: %d\n",
		rep.Files, rep.Imported, rep.Unchanged, rep.Changed, rep.Skipped)
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, email, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or CBTHUB_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "email", email)
	return nil
}

// seedCodes issues the first batch of codes when none were ever issued.
func seedCodes(ctx context.Context, db *store.Store, ledger *activation.Ledger, validity time.Duration) error {
	count, err := db.ActivationCodeCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = ledger.Issue(ctx, initialCodeBatch, validity)
	return err
}
