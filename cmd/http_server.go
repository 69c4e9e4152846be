package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/tenant-identity/api"
	"github.com/frahmantamala/tenant-identity/internal"
	"github.com/frahmantamala/tenant-identity/internal/auth"
	authPostgres "github.com/frahmantamala/tenant-identity/internal/auth/postgres"
	"github.com/frahmantamala/tenant-identity/internal/core/common/dbtx"
	"github.com/frahmantamala/tenant-identity/internal/core/events"
	"github.com/frahmantamala/tenant-identity/internal/ephemeral"
	ephemeralPostgres "github.com/frahmantamala/tenant-identity/internal/ephemeral/postgres"
	"github.com/frahmantamala/tenant-identity/internal/invitation"
	invitationPostgres "github.com/frahmantamala/tenant-identity/internal/invitation/postgres"
	"github.com/frahmantamala/tenant-identity/internal/observability"
	"github.com/frahmantamala/tenant-identity/internal/rbac"
	rbacPostgres "github.com/frahmantamala/tenant-identity/internal/rbac/postgres"
	"github.com/frahmantamala/tenant-identity/internal/transport"
	"github.com/frahmantamala/tenant-identity/internal/transport/middleware"
	"github.com/frahmantamala/tenant-identity/internal/transport/openapi"
	"github.com/frahmantamala/tenant-identity/internal/transport/rest"
	"github.com/frahmantamala/tenant-identity/internal/user"
	userPostgres "github.com/frahmantamala/tenant-identity/internal/user/postgres"
	"github.com/frahmantamala/tenant-identity/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	EventBus *events.EventBus
	Metrics  *observability.Metrics
	OpenAPI  *openapi.Document
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.EventBus.Drain(ctx); err != nil {
			deps.Logger.Error("Event delivery did not finish", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger
	timeout := cfg.Database.QueryTimeout

	tokens, err := auth.NewJWTTokenGeneratorFromConfig(cfg.Security)
	if err != nil {
		return fmt.Errorf("failed to build token generator: %w", err)
	}

	userService := user.NewService(userPostgres.NewUserRepository(deps.Gorm, timeout), cfg.Security.BCryptCost, lg)
	rbacService := rbac.NewService(rbacPostgres.NewRBACRepository(deps.Gorm, timeout), lg).WithPublisher(deps.EventBus)

	authService := auth.NewService(userService, tokens,
		authPostgres.NewBlacklistRepository(deps.Gorm, timeout),
		auth.Options{
			RevokeRefreshOnRotate: cfg.Security.RevokeRefreshOnRotate,
			Provisioner:           rbacService,
			Publisher:             deps.EventBus,
			Recorder:              deps.Metrics,
			Transactor:            dbtx.NewTransactor(deps.Gorm),
		}, lg)

	invitationService := invitation.NewService(
		invitationPostgres.NewInvitationRepository(deps.Gorm, timeout),
		deps.EventBus, cfg.Server.BaseURL, cfg.Invitation.TTL, lg).
		WithAuthorizer(rbacService)

	ephemeralService := ephemeral.NewService(
		ephemeralPostgres.NewEphemeralTokenRepository(deps.Gorm, timeout),
		userService, tokens, authService,
		ephemeral.Options{
			PasswordResetTTL: cfg.Tokens.PasswordResetTTL,
			LoginCodeTTL:     cfg.Tokens.LoginCodeTTL,
			MagicLinkTTL:     cfg.Tokens.MagicLinkTTL,
			BaseURL:          cfg.Server.BaseURL,
			Publisher:        deps.EventBus,
		}, lg)

	base := transport.NewBaseHandler(lg)
	handlers := rest.Handlers{
		Auth:        auth.NewHandler(base, authService),
		Users:       user.NewHandler(base, userService),
		RBAC:        rbac.NewHandler(base, rbacService),
		Invitations: invitation.NewHandler(base, invitationService),
		Tokens:      ephemeral.NewHandler(base, ephemeralService),
		Authz:       auth.NewRBACAuthorization(rbacService, lg),
	}

	opts := rest.Options{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		OpenAPI:           deps.OpenAPI,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.Metrics = deps.Metrics
		opts.MetricsPath = cfg.Observability.Metrics.Path
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, lg)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, handlers, opts, lg)

	if missing, err := deps.OpenAPI.Undocumented(deps.Router); err == nil && len(missing) > 0 {
		lg.Warn("routes missing from the OpenAPI document", "routes", missing)
	}
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db, config.Env)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	doc, err := openapi.LoadFile(context.Background(), config.Server.OpenAPIPath, api.OpenAPISpec)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}

	bus := events.NewEventBus(lg)
	events.SubscribeDeliveryLogger(bus, lg)
	events.SubscribeAuditLogger(bus, lg)

	return &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		Gorm:     gormDB,
		Router:   chi.NewRouter(),
		EventBus: bus,
		Metrics:  observability.NewMetrics(),
		OpenAPI:  doc,
	}, nil
}

// initDB opens the shared pgx pool that both sqlx and gorm sit on.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func initGorm(db *sqlx.DB, env string) (*gorm.DB, error) {
	level := gormLogger.Warn
	if env != "production" {
		level = gormLogger.Info
	}
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(level),
		TranslateError: true,
	})
}
