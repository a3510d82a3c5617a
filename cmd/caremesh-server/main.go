package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caremesh/caremesh/internal/config"
	"github.com/caremesh/caremesh/internal/domain/account"
	"github.com/caremesh/caremesh/internal/domain/org"
	"github.com/caremesh/caremesh/internal/domain/patientrecord"
	"github.com/caremesh/caremesh/internal/domain/rbac"
	"github.com/caremesh/caremesh/internal/platform/audit"
	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/internal/platform/db"
	"github.com/caremesh/caremesh/internal/platform/metrics"
	"github.com/caremesh/caremesh/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caremesh-server",
		Short: "CareMesh access control and audit API server",
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
		Short: "Start the API server",
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
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return err
			}

			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%4d  %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token codecs: distinct signing contexts for staff and portal.
	codec, err := auth.NewCodec(cfg.SigningKeys(), cfg.TokenTTL, "caremesh")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid staff signing keys")
	}
	portalCodec, err := auth.NewPortalCodec(cfg.PortalKeys(), cfg.PortalTokenTTL, "caremesh")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid portal signing keys")
	}

	sessions := auth.NewSessionTracker(cfg.SessionIdleTimeout)
	revoked := auth.NewRevocationList()
	defer revoked.Close()
	throttle := auth.NewLoginThrottle(cfg.LockoutThreshold, cfg.LockoutWindow, cfg.LockoutDuration)

	// Audit pipeline.
	auditRepo := audit.NewRepoPG(pool)
	recorder := audit.NewRecorder(auditRepo, logger)
	defer recorder.Close()

	// Repositories and services.
	accountRepo := account.NewRepo(pool)
	principals := account.NewPrincipalStore(accountRepo)
	accountSvc := account.NewService(accountRepo, pool, codec, sessions, revoked, throttle, recorder, logger)

	rbacRepo := rbac.NewRepo(pool)
	engine := auth.NewPermissionEngine(rbacRepo, cfg.PermissionCacheTTL)
	rbacSvc := rbac.NewService(rbacRepo, pool, recorder, engine)

	recordRepo := patientrecord.NewRepo(pool)
	recordSvc := patientrecord.NewService(recordRepo, pool, recorder)

	orgRepo := org.NewRepo(pool)

	chain := auth.NewChain(codec, revoked, sessions, principals, accountSvc, logger)
	// Portal tokens are issued outside this process, so no staff session
	// exists to touch; a nil tracker skips the idle-session check.
	portalChain := auth.NewChain(portalCodec, revoked, nil, principals, nil, logger)

	// Echo server.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Org-ID", "Idempotency-Key"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Operational endpoints, outside the authenticated surface.
	e.GET("/healthz", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	accountHandler := account.NewHandler(accountSvc)

	// Public routes: login only. No principal yet, so limiting keys on
	// client IP.
	public := e.Group("/api/v1")
	public.Use(middleware.RateLimit(rateLimitCfg))
	accountHandler.RegisterPublicRoutes(public)

	// Authenticated surface. Order is fixed: token verification and
	// session checks, then tenant resolution, then denial auditing, then
	// per-route guards inside each handler's RegisterRoutes.
	// Rate limiting runs after authentication so each principal gets its
	// own bucket instead of sharing one per source IP.
	api := e.Group("/api/v1")
	api.Use(chain.Authenticate())
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(chain.ResolveTenant())
	api.Use(middleware.DenialAudit(recorder))

	accountHandler.RegisterRoutes(api)
	org.NewHandler(orgRepo, recorder).RegisterRoutes(api)
	rbac.NewHandler(rbacSvc).RegisterRoutes(api)
	patientrecord.NewHandler(recordSvc).RegisterRoutes(api)
	audit.NewHandler(auditRepo).RegisterRoutes(api)

	// Patient portal: separate key ring, shorter token TTL, patient role
	// enforced at issuance and again here.
	portal := e.Group("/api/v1/portal")
	portal.Use(portalChain.Authenticate())
	portal.Use(middleware.RateLimit(rateLimitCfg))
	portal.Use(portalChain.ResolveTenant())
	portal.Use(auth.RequireRole(auth.RolePatient))
	accountHandler.RegisterPortalRoutes(portal)

	// Graceful shutdown.
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
