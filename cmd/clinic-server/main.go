package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/linkage"
	"github.com/clinic/clinic/internal/domain/ownership"
	"github.com/clinic/clinic/internal/domain/visit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/reminder"
	"github.com/clinic/clinic/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic visit and billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(specializationCmd())

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

// openPool loads config and connects; the caller closes the pool.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
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
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			count, err := db.NewMigrator(pool, afero.NewOsFs(), dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			statuses, err := db.NewMigrator(pool, afero.NewOsFs(), dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, state, at)
	}
}

// specializationCmd manages the specialization list doctors register
// against. There is no HTTP route for it.
func specializationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specialization",
		Short: "Manage doctor specializations",
	}

	addCmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a specialization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(identity.NewActorRepo(pool), identity.NewSpecializationRepo(pool), nil)
			spec, err := svc.CreateSpecialization(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created specialization %q (%s)\n", spec.Name, spec.ID)
			return nil
		},
	}
	cmd.AddCommand(addCmd)
	return cmd
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// resolveSigningKey returns the configured JWT key. In development a missing
// key is replaced with a random one, so tokens do not survive a restart.
func resolveSigningKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.JWTSigningKey != "" {
		return cfg.SigningKey(), false, nil
	}
	if !cfg.IsDev() {
		return nil, false, fmt.Errorf("JWT_SIGNING_KEY is required outside development")
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

// app holds the long-running components that need an orderly shutdown.
type app struct {
	echo       *echo.Echo
	dispatcher *notification.Dispatcher
	scheduler  *reminder.Scheduler
	revoked    *auth.RevocationList
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, signingKey []byte, logger zerolog.Logger) (*app, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	revoked := auth.NewRevocationList(5 * time.Minute)
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		SigningKey: signingKey,
		Issuer:     cfg.JWTIssuer,
		Skipper:    auth.AuthSkipper,
		Revoked:    revoked,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, db.PoolStatsOf(pool)))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.POST("/auth/logout", auth.LogoutHandler(revoked))

	// Push and email delivery
	hub := websocket.NewHub(logger)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	var email notification.EmailSender
	if cfg.SMTPEnabled() {
		email = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn().Msg("SMTP_HOST not set, email notifications disabled")
	}
	dispatcher, err := notification.NewDispatcher(notification.DispatcherConfig{Workers: cfg.NotifyWorkers}, email, hub, logger)
	if err != nil {
		revoked.Close()
		return nil, err
	}

	blobs, err := blobstore.NewOSStore(cfg.BlobDir)
	if err != nil {
		revoked.Close()
		_ = dispatcher.Close(time.Second)
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	// Repositories
	actorRepo := identity.NewActorRepo(pool)
	specRepo := identity.NewSpecializationRepo(pool)
	serviceRepo := catalog.NewServiceRepo(pool)
	linkRepo := linkage.NewLinkRepo(pool)
	visitRepo := visit.NewVisitRepo(pool)
	reminderStore := reminder.NewStorePG(pool)

	guard := ownership.NewGuard(serviceRepo, linkRepo, visitRepo)

	// Services
	identitySvc := identity.NewService(actorRepo, specRepo, auth.NewIssuer(signingKey, cfg.JWTIssuer, cfg.JWTTTL))
	catalogSvc := catalog.NewCatalog(serviceRepo, guard)
	linkageSvc := linkage.NewService(linkRepo, identitySvc, guard)
	visitSvc := visit.NewService(visit.Deps{
		Visits:      visitRepo,
		Lines:       visit.NewLineRepo(pool),
		Attachments: visit.NewAttachmentRepo(pool),
		Catalog:     catalogSvc,
		Guard:       guard,
		Tx:          db.NewTxManager(pool),
		Reminders:   reminder.NewPlanner(reminderStore),
		Contacts:    identitySvc,
		Notifier:    dispatcher,
		Blobs:       blobs,
		Logger:      logger,
	})

	scheduler, err := reminder.NewScheduler(reminder.SchedulerConfig{Spec: cfg.ReminderScanSpec},
		reminderStore, visitSvc, dispatcher, logger)
	if err != nil {
		revoked.Close()
		_ = dispatcher.Close(time.Second)
		return nil, err
	}

	// Routes
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	linkage.NewHandler(linkageSvc).RegisterRoutes(apiV1)
	visit.NewHandler(visitSvc).RegisterRoutes(apiV1)

	return &app{echo: e, dispatcher: dispatcher, scheduler: scheduler, revoked: revoked}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	signingKey, generated, err := resolveSigningKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SIGNING_KEY not set, using a random development key")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := buildApp(cfg, pool, signingKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	a.scheduler.Start()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	a.scheduler.Stop(shutdownCtx)
	if err := a.dispatcher.Close(5 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("notification queue not drained")
	}
	a.revoked.Close()
	logger.Info().Msg("server stopped")
	return nil
}
