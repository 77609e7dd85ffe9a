package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthfirst/availability/internal/config"
	"github.com/healthfirst/availability/internal/domain/availability"
	"github.com/healthfirst/availability/internal/platform/auth"
	"github.com/healthfirst/availability/internal/platform/db"
	"github.com/healthfirst/availability/internal/platform/lock"
	"github.com/healthfirst/availability/internal/platform/middleware"
	"github.com/healthfirst/availability/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "availability-server",
		Short: "Provider availability and slot scheduling API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// storage bundles the repositories of the configured backend.
type storage struct {
	windows availability.WindowRepository
	slots   availability.SlotRepository
	tx      availability.TxManager
	pool    *pgxpool.Pool
}

func (s *storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.StorageBackend == config.StorageMemory {
		mem := availability.NewMemoryStore()
		return &storage{windows: mem.Windows(), slots: mem.Slots(), tx: mem}, nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	return &storage{
		windows: availability.NewWindowRepoPG(pool),
		slots:   availability.NewSlotRepoPG(pool),
		tx:      db.NewTransactor(pool),
		pool:    pool,
	}, nil
}

type healthLocker interface {
	lock.Locker
	db.Pinger
}

func openLocker(ctx context.Context, cfg *config.Config) (healthLocker, func(), error) {
	if cfg.ResolvedLockBackend() != config.LockRedis {
		return lock.NewLocalLocker(), func() {}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait), func() { _ = client.Close() }, nil
}

func engineOptions(cfg *config.Config) availability.Options {
	return availability.Options{
		MaxOccurrences:    cfg.MaxOccurrences,
		MaxSlots:          cfg.MaxSlots,
		HorizonMonths:     cfg.RecurrenceHorizonMonths,
		SearchDefaultDays: cfg.SearchDefaultDays,
		SearchTimezone:    cfg.SearchTimezone,
	}
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg)
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: unauthenticated requests are treated as admin")
	}

	// Storage
	ctx := context.Background()
	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()
	logger.Info().Str("backend", cfg.StorageBackend).Msg("storage ready")

	// Provider lock
	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeLocker()
	logger.Info().Str("backend", cfg.ResolvedLockBackend()).Msg("provider lock ready")

	svc := availability.NewService(store.windows, store.slots, store.tx, locker, engineOptions(cfg), logger)
	handler := availability.NewHandler(svc)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if store.pool != nil {
		e.GET("/health/db", db.PoolHealthHandler(store.pool))
	}
	e.GET("/health/lock", db.HealthHandler(locker, func() interface{} {
		return map[string]string{"backend": cfg.ResolvedLockBackend()}
	}))

	// API
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtConfig(cfg))
	} else {
		authMW = auth.JWTMiddleware(jwtConfig(cfg))
	}
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst
	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rl))
	handler.RegisterRoutes(apiV1)

	// Graceful shutdown
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	openMigrator := func(ctx context.Context) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required")
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, "", cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrations.FS), pool.Close, nil
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			migrator, done, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer done()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			migrator, done, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer done()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			providerFlag, _ := cmd.Flags().GetString("provider-id")
			verified, _ := cmd.Flags().GetBool("verified")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to sign tokens")
			}

			var providerID uuid.UUID
			if providerFlag != "" {
				if providerID, err = uuid.Parse(providerFlag); err != nil {
					return fmt.Errorf("invalid --provider-id: %w", err)
				}
			}
			switch role {
			case auth.RoleAdmin, auth.RoleProvider, auth.RolePatient:
			default:
				return fmt.Errorf("--role must be admin, provider or patient")
			}

			token, err := jwtConfig(cfg).IssueToken(subject, role, providerID, verified, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "dev-user", "Token subject")
	cmd.Flags().String("role", auth.RoleProvider, "Role claim: admin, provider or patient")
	cmd.Flags().String("provider-id", "", "Provider id claim")
	cmd.Flags().Bool("verified", true, "Mark the provider as verified")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
