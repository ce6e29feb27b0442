package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearhaven/worklog/backend/internal/activity"
	"github.com/clearhaven/worklog/backend/internal/agents"
	"github.com/clearhaven/worklog/backend/internal/auth"
	"github.com/clearhaven/worklog/backend/internal/config"
	"github.com/clearhaven/worklog/backend/internal/database"
	"github.com/clearhaven/worklog/backend/internal/logging"
	"github.com/clearhaven/worklog/backend/internal/server"
	"github.com/clearhaven/worklog/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "worklog-api",
		Short: "Worklog todo activity backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("session-issuer", defaults.GetString("session.issuer"), "Expected session token issuer")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("enrich-timeout-ms", defaults.GetInt("enrich.timeout_ms"), "Per-item identity lookup timeout in milliseconds")
	cmd.PersistentFlags().Int("enrich-concurrency", defaults.GetInt("enrich.concurrency"), "Bounded concurrency of list enrichment")
	cmd.PersistentFlags().Int("notify-queue-size", defaults.GetInt("notify.queue_size"), "Notification dispatch queue size")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.issuer", "session-issuer")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "enrich.timeout_ms", "enrich-timeout-ms")
	bindFlag(cmd, "enrich.concurrency", "enrich-concurrency")
	bindFlag(cmd, "notify.queue_size", "notify-queue-size")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSecret),
		Issuer:        appConfig.SessionIssuer,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	agentService, err := agents.NewService(agents.ServiceConfig{
		Database:   db,
		IDProvider: activity.NewUUIDProvider(),
	})
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()

	notifier, err := activity.NewNotifier(activity.NotifierConfig{
		Publisher: dispatcher,
		Logger:    logger,
		QueueSize: appConfig.NotifyQueueSize,
	})
	if err != nil {
		return err
	}
	defer notifier.Close()

	enricher, err := activity.NewEnricher(activity.EnricherConfig{
		Users:         userService,
		Agents:        agentService,
		LookupTimeout: appConfig.EnrichTimeout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	activityService, err := activity.NewService(activity.ServiceConfig{
		Database:          db,
		IDProvider:        activity.NewUUIDProvider(),
		Logger:            logger,
		Notifier:          notifier,
		Enricher:          enricher,
		EnrichConcurrency: appConfig.EnrichConcurrency,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		ActivityService:  activityService,
		AgentService:     agentService,
		Users:            userService,
		Realtime:         dispatcher,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", appConfig.HTTPAddress))
		serverErrors <- httpServer.ListenAndServe()
	}()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-signalCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown incomplete", zap.Error(err))
		}
	}

	return nil
}
