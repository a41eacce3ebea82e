package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/johaanq/oncontrol-backend/internal/config"
	"github.com/johaanq/oncontrol-backend/internal/domain/profile"
	"github.com/johaanq/oncontrol-backend/internal/domain/treatment"
	"github.com/johaanq/oncontrol-backend/internal/platform/auth"
	"github.com/johaanq/oncontrol-backend/internal/platform/cache"
	"github.com/johaanq/oncontrol-backend/internal/platform/db"
	"github.com/johaanq/oncontrol-backend/internal/platform/middleware"
	"github.com/johaanq/oncontrol-backend/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "oncontrol-server",
		Short:        "OnControl treatment and session API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tenantCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource prefers an on-disk directory over the embedded migrations.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
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
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
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
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations to it",
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
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrationSource(cfg.MigrationsDir)); err != nil {
				return err
			}
			fmt.Fprintln(out, "Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(createCmd)

	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.PublicSkipper,
	}
	if cfg.AuthSigningKey != "" {
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return jc
}

// newRegistry returns a registry carrying the runtime collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type server struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	reg     *prometheus.Registry
	service *treatment.Service
}

// newEcho assembles the middleware chain and routes.
func (s *server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(s.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.ContextTimeout(30 * time.Second))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.NewHTTPMetrics(s.reg).Middleware())

	if s.cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtConfig(s.cfg)))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(s.cfg)))
	}
	if s.pool != nil {
		e.Use(db.TenantMiddleware(s.pool, s.cfg.DefaultTenant, auth.PublicSkipper))
	}
	e.Use(middleware.Audit(s.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if s.pool != nil {
		e.GET("/health/db", db.HealthHandler(s.pool))
	}
	e.GET("/metrics", middleware.MetricsHandler(s.reg))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: s.cfg.RateLimitRPS,
		BurstSize:         s.cfg.RateLimitBurst,
		ExpiresIn:         middleware.DefaultRateLimitConfig().ExpiresIn,
	}))
	treatment.NewHandler(s.service, s.logger).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	reg := newRegistry()
	if err := db.RegisterPoolMetrics(reg, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to register pool metrics")
	}

	opts := []treatment.Option{
		treatment.WithLogger(logger),
		treatment.WithMetrics(treatment.NewMetrics(reg)),
		treatment.WithSessionSerialization(cfg.SerializeSessionRegistration),
	}
	if cfg.RedisURL != "" {
		store, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("stats cache disabled")
		} else {
			defer store.Close()
			opts = append(opts, treatment.WithStatsCache(store, cfg.StatsCacheTTL))
			logger.Info().Dur("ttl", cfg.StatsCacheTTL).Msg("stats cache enabled")
		}
	}

	svc := treatment.NewService(
		treatment.NewTreatmentRepoPG(pool),
		treatment.NewSessionRepoPG(pool),
		profile.NewRepoPG(pool),
		db.NewTxManager(pool),
		opts...,
	)

	s := &server{cfg: cfg, logger: logger, pool: pool, reg: reg, service: svc}
	e := s.newEcho()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
