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

	"github.com/operio-app/operio/internal"
	"github.com/operio-app/operio/internal/auth"
	"github.com/operio-app/operio/internal/events"
	"github.com/operio-app/operio/internal/rbac"
	rbacPostgres "github.com/operio-app/operio/internal/rbac/postgres"
	"github.com/operio-app/operio/internal/session"
	sessionPostgres "github.com/operio-app/operio/internal/session/postgres"
	"github.com/operio-app/operio/internal/transport/rest"
	"github.com/operio-app/operio/internal/user"
	userPostgres "github.com/operio-app/operio/internal/user/postgres"
	"github.com/operio-app/operio/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	Router         *chi.Mux
	Logger         *slog.Logger
	AuthHandler    *auth.Handler
	SessionHandler *session.Handler
	UserHandler    *user.Handler
	RBACHandler    *rbac.Handler
	Guards         *rbac.Guards
	Janitor        *session.Janitor
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		deps.AuthHandler,
		deps.SessionHandler,
		deps.UserHandler,
		deps.RBACHandler,
		deps.Guards,
		deps.Config.Server.AllowedOrigins,
		deps.Logger,
	)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Janitor runs alongside the server, decoupled from request traffic
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	if deps.Config.Janitor.RunInServer {
		go deps.Janitor.Start(janitorCtx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		stopJanitor()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWithConfig(config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}

	// repositories
	userRepo := userPostgres.NewRepository(gormDB)
	sessionRepo := sessionPostgres.NewRepository(gormDB)
	permissionStore := rbacPostgres.NewStore(gormDB)

	// core services
	bus := events.NewEventBus(log)
	sessionService := session.NewService(sessionRepo, bus, log, config.Security.RefreshTokenDuration)
	userService := user.NewService(userRepo, log)
	tokenGenerator := auth.NewJWTTokenGenerator(
		config.Security.JWTSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(tokenGenerator, userService, sessionService, log)

	matrix := rbac.NewMatrix(permissionStore, log)
	if err := matrix.Bootstrap(); err != nil {
		return nil, fmt.Errorf("failed to bootstrap permission matrix: %w", err)
	}
	engine := rbac.NewEngine(matrix)

	janitor := session.NewJanitor(sessionService, log, config.Janitor.InitialDelay, config.Janitor.Interval)

	return &dependencies{
		Config:         config,
		DB:             db,
		Router:         chi.NewRouter(),
		Logger:         log,
		AuthHandler:    auth.NewHandler(authService, log),
		SessionHandler: session.NewHandler(sessionService, log),
		UserHandler:    user.NewHandler(log),
		RBACHandler:    rbac.NewHandler(matrix, log),
		Guards:         rbac.NewGuards(engine, log),
		Janitor:        janitor,
	}, nil
}

// initDB initializes the database connection
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

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
