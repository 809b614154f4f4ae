package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/config"
	"github.com/healthvault/healthvault/internal/domain/analysis"
	"github.com/healthvault/healthvault/internal/domain/auditlog"
	"github.com/healthvault/healthvault/internal/domain/consent"
	"github.com/healthvault/healthvault/internal/domain/note"
	"github.com/healthvault/healthvault/internal/domain/notification"
	"github.com/healthvault/healthvault/internal/domain/profile"
	"github.com/healthvault/healthvault/internal/domain/reminder"
	"github.com/healthvault/healthvault/internal/domain/user"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/internal/platform/db"
	"github.com/healthvault/healthvault/internal/platform/filestore"
	"github.com/healthvault/healthvault/internal/platform/middleware"
	"github.com/healthvault/healthvault/internal/platform/notify"
	"github.com/healthvault/healthvault/internal/platform/ocr"
)

// userDirectory adapts the user repository to the directory interfaces the
// consent, analysis and reminder services declare, avoiding circular imports
// between those packages and the user package.
type userDirectory struct {
	repo user.Repository
}

// Lookup implements consent.Directory.
func (d *userDirectory) Lookup(ctx context.Context, id uuid.UUID) (*consent.UserInfo, error) {
	u, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &consent.UserInfo{ID: u.ID, Role: u.Role, Email: u.Email, Name: u.FullName()}, nil
}

// EmailOf implements analysis.Directory and reminder.Directory.
func (d *userDirectory) EmailOf(ctx context.Context, id uuid.UUID) (email, name string, err error) {
	u, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	return u.Email, u.FullName(), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "vault-server",
		Short: "HealthVault records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the records API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Roll forward with a new migration instead.")
			return nil
		},
	})

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token issuer. In development without a configured secret an ephemeral
	// key is generated so login still works; tokens die with the process.
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := crypto_rand.Read(secret); err != nil {
			logger.Fatal().Err(err).Msg("failed to generate signing key")
		}
		logger.Warn().Msg("JWT_SECRET not set; using an ephemeral signing key")
	}
	issuer := auth.NewTokenIssuer(secret, cfg.JWTIssuer, cfg.TokenTTL)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Client IP for the audit trail
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := audit.WithClientIP(c.Request().Context(), c.RealIP())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	authMW := auth.Middleware(issuer)
	if cfg.IsDev() && cfg.JWTSecret == "" {
		authMW = auth.DevMiddleware()
		logger.Warn().Msg("running with development auth; all requests act as admin")
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// API groups. The public group carries the unauthenticated auth
	// endpoints; everything else requires a bearer token.
	tenantMW := db.TenantMiddleware(pool, cfg.DefaultTenant)
	public := e.Group("/api/v1", tenantMW, middleware.RateLimit(rateLimitCfg))
	api := e.Group("/api/v1", authMW, tenantMW,
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(cfg.RequestTimeout))

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// Audit trail. The recorder swallows sink failures so a broken audit
	// write never fails the request that triggered it.
	auditRepo := auditlog.NewRepo(pool)
	recorder := audit.NewRecorder(auditlog.NewSink(auditRepo), logger)

	// Notifications: emails go to the log sender until a relay is wired in,
	// and every user-addressed message is journaled in-app.
	notifier := notify.NewNotifier(&notify.LogSender{Log: logger}, notify.NewTemplateEngine(), logger)
	notifSvc := notification.NewService(notification.NewRepo(pool))
	notifier.SetJournal(notifSvc)

	// Consent-backed access evaluator
	userRepo := user.NewRepo(pool)
	dir := &userDirectory{repo: userRepo}
	consentSvc := consent.NewService(consent.NewRepo(pool), dir, recorder, notifier)
	eval := access.NewEvaluator(consentSvc)

	// File storage
	var files filestore.Store
	if cfg.FileStoreDir != "" {
		files, err = filestore.NewDiskStore(cfg.FileStoreDir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.FileStoreDir).Msg("failed to open file store")
		}
	} else {
		files = filestore.NewMemoryStore()
		logger.Warn().Msg("FILE_STORE_DIR not set; uploaded files are held in memory")
	}

	// OCR pipeline
	extractor := ocr.NewExtractor(ocr.NewTesseractEngine(), cfg.OCRTimeout)
	parserMode := analysis.ModeLines
	if cfg.ParserMode == "document" {
		parserMode = analysis.ModeDocument
	}

	// Domain services
	userSvc := user.NewService(userRepo, issuer, recorder, notifier, cfg.ResetURL)
	profileSvc := profile.NewService(profile.NewRepo(pool), eval, recorder)
	analysisSvc := analysis.NewService(analysis.NewRepo(pool), files, extractor, eval, recorder, notifier, dir, parserMode, logger)
	noteSvc := note.NewService(note.NewRepo(pool), files, eval, recorder, logger)
	reminderSvc := reminder.NewService(reminder.NewRepo(pool), eval, recorder, notifier, dir, logger)
	auditSvc := auditlog.NewService(auditRepo)

	// Routes
	user.NewHandler(userSvc).RegisterRoutes(public, api)
	profile.NewHandler(profileSvc).RegisterRoutes(api)
	consent.NewHandler(consentSvc).RegisterRoutes(api)
	analysis.NewHandler(analysisSvc).RegisterRoutes(api)
	note.NewHandler(noteSvc).RegisterRoutes(api)
	reminder.NewHandler(reminderSvc).RegisterRoutes(api)
	notification.NewHandler(notifSvc).RegisterRoutes(api)
	auditlog.NewHandler(auditSvc).RegisterRoutes(api)

	// Start
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// httpErrorHandler renders domain errors with their mapped status and public
// message, keeping internal detail out of responses.
func httpErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, map[string]interface{}{"error": fmt.Sprintf("%v", he.Message)})
			return
		}

		status := apperr.HTTPStatus(err)
		body := map[string]interface{}{"error": apperr.PublicMessage(err)}
		if fields := apperr.FieldsOf(err); len(fields) > 0 {
			body["fields"] = fields
		}
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}
		_ = c.JSON(status, body)
	}
}
