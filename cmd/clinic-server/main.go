package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/abejo/dental-clinic/internal/config"
	"github.com/abejo/dental-clinic/internal/domain/appointment"
	"github.com/abejo/dental-clinic/internal/domain/inventory"
	"github.com/abejo/dental-clinic/internal/domain/patient"
	"github.com/abejo/dental-clinic/internal/platform/auth"
	"github.com/abejo/dental-clinic/internal/platform/blobstore"
	"github.com/abejo/dental-clinic/internal/platform/db"
	"github.com/abejo/dental-clinic/internal/platform/middleware"
	"github.com/abejo/dental-clinic/internal/platform/reporting"
	"github.com/abejo/dental-clinic/migrations"
)

const devAdminPassword = "12345"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Dental clinic admin API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")

			ctx := context.Background()
			backend, migrator, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			fmt.Printf("Running %s migrations\n", backend.Driver)
			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, target)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this migration version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			backend, migrator, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for %s\n", backend.Driver)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Backend, *db.Migrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	fsys, err := migrations.FS(cfg.DBDriver)
	if err != nil {
		return nil, nil, err
	}
	backend, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return backend, backend.Migrator(fsys), nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))
	log.Logger = logger

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	backend, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer backend.Close()
	logger.Info().Str("driver", backend.Driver).Msg("connected to database")

	if cfg.AutoMigrate {
		fsys, err := migrations.FS(backend.Driver)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load migrations")
		}
		n, err := backend.Migrator(fsys).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", n).Msg("database schema is up to date")
	}

	photos, err := blobstore.NewDiskStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	e, err := newServer(cfg, backend, photos, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("auth_mode", cfg.AuthMode).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires the middleware chain and every route onto a fresh echo
// instance.
func newServer(cfg *config.Config, backend *db.Backend, photos *blobstore.DiskStore, logger zerolog.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(auth.UploadsPrefix))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	creds, issuer, err := resolveAuth(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.AuthMode == config.AuthModeToken {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: issuer.SigningKey,
			Issuer:     issuer.Issuer,
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		e.Use(auth.DevAuthMiddleware())
	}

	// Per-request connection
	e.Use(connMiddleware(backend))

	// Uploaded photos
	e.Static(strings.TrimSuffix(auth.UploadsPrefix, "/"), photos.Dir())

	api := e.Group("/api")
	api.GET("/health", db.HealthHandler(backend))
	api.GET("/test", db.TestHandler(backend))
	api.POST("/auth/login", auth.LoginHandler(creds, issuer))

	// Domain services
	var (
		patientRepo     patient.Repository
		appointmentRepo appointment.Repository
		inventoryRepo   inventory.Repository
		reportSource    reporting.Source
	)
	switch backend.Driver {
	case db.DriverMySQL:
		patientRepo = patient.NewRepoMySQL(backend.SQL)
		appointmentRepo = appointment.NewRepoMySQL(backend.SQL)
		inventoryRepo = inventory.NewRepoMySQL(backend.SQL)
		reportSource = reporting.NewSQLSource(backend.SQL)
	default:
		patientRepo = patient.NewRepoPG(backend.Pool)
		appointmentRepo = appointment.NewRepoPG(backend.Pool)
		inventoryRepo = inventory.NewRepoPG(backend.Pool)
		reportSource = reporting.NewPgSource(backend.Pool)
	}

	patientSvc := patient.NewService(patientRepo, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	appointmentSvc := appointment.NewService(appointmentRepo, patientSvc, backend.TxRunner(), photos, logger)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(api)

	inventorySvc := inventory.NewService(inventoryRepo, logger)
	inventory.NewHandler(inventorySvc).RegisterRoutes(api)

	reporting.NewHandler(reportSource).RegisterRoutes(api)

	return e, nil
}

// connMiddleware pins a database connection to every request except the
// public health checks and static photos, which do not go through a repository.
func connMiddleware(backend *db.Backend) echo.MiddlewareFunc {
	pin := backend.ConnMiddleware()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		pinned := pin(next)
		return func(c echo.Context) error {
			if auth.IsPublicPath(c.Request().URL.Path) {
				return next(c)
			}
			return pinned(c)
		}
	}
}

// resolveAuth builds the admin credential and token issuer. Development mode
// falls back to the default password and a random per-process signing key.
func resolveAuth(cfg *config.Config, logger zerolog.Logger) (*auth.Credentials, *auth.TokenIssuer, error) {
	password := cfg.AdminPassword
	if password == "" && cfg.AdminPasswordHash == "" {
		if cfg.AuthMode == config.AuthModeToken {
			return nil, nil, fmt.Errorf("admin credential is required in token mode")
		}
		logger.Warn().Str("username", cfg.AdminUsername).Msg("ADMIN_PASSWORD not set, using the development default")
		password = devAdminPassword
	}
	creds, err := auth.NewCredentials(cfg.AdminUsername, password, cfg.AdminPasswordHash)
	if err != nil {
		return nil, nil, err
	}

	key, generated, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		return nil, nil, err
	}
	if generated {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, tokens will not survive a restart")
	}
	return creds, auth.NewTokenIssuer(key, "clinic-server", cfg.AuthTokenTTL), nil
}

// resolveSigningKey returns the configured key or a random 32-byte key. The
// second return value is true when a random key was generated.
func resolveSigningKey(value string) ([]byte, bool, error) {
	if value != "" {
		return []byte(value), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}
