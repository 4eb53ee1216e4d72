package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/operio-app/operio/internal/events"
	"github.com/operio-app/operio/internal/session"
	sessionPostgres "github.com/operio-app/operio/internal/session/postgres"
	"github.com/operio-app/operio/pkg/logger"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// The janitor can run inside the API server or as this standalone worker.
// Both may run at once: the expiry sweep is idempotent per row, so
// redundant sweeps are harmless and no leader election is needed.
var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Start the session janitor worker",
	Long:  `Run the expired-session sweep on a fixed schedule, independent of the API server.`,
	Run: func(cmd *cobra.Command, args []string) {
		startJanitor()
	},
}

func startJanitor() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm connection: %v\n", err)
		os.Exit(1)
	}

	sessionRepo := sessionPostgres.NewRepository(gormDB)
	bus := events.NewEventBus(log)
	sessionService := session.NewService(sessionRepo, bus, log, config.Security.RefreshTokenDuration)
	janitor := session.NewJanitor(sessionService, log, config.Janitor.InitialDelay, config.Janitor.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	go janitor.Start(ctx)

	log.Info("session janitor is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down janitor", "signal", sig)
	cancel()
	log.Info("janitor shutdown complete")
}
