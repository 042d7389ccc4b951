package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridianimaging/meridian/backend/internal/applications"
	"github.com/meridianimaging/meridian/backend/internal/auth"
	"github.com/meridianimaging/meridian/backend/internal/config"
	"github.com/meridianimaging/meridian/backend/internal/database"
	"github.com/meridianimaging/meridian/backend/internal/logging"
	"github.com/meridianimaging/meridian/backend/internal/server"
	"github.com/meridianimaging/meridian/backend/internal/signups"
	"github.com/meridianimaging/meridian/backend/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meridian-api",
		Short: "Meridian Imaging backend service",
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
	cmd.PersistentFlags().String("storage-path", defaults.GetString("storage.path"), "Private object storage directory")
	cmd.PersistentFlags().Int("signed-url-ttl-seconds", defaults.GetInt("signed_url.ttl_seconds"), "Signed download URL validity in seconds")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("admin-emails", defaults.GetString("admin.emails"), "Comma-separated addresses granted the admin flag at signup")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "storage.path", "storage-path")
	bindFlag(cmd, "signed_url.ttl_seconds", "signed-url-ttl-seconds")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "admin.emails", "admin-emails")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "meridian-auth",
		Audience:      "meridian-api",
		SessionTTL:    time.Duration(appConfig.TokenTTLMinutes) * time.Minute,
	})

	accountService, err := auth.NewService(auth.ServiceConfig{
		Database:    db,
		IDProvider:  auth.NewUUIDProvider(),
		Logger:      logger,
		AdminEmails: appConfig.AdminEmails,
	})
	if err != nil {
		return err
	}

	diskStore, err := storage.NewDiskStore(appConfig.StoragePath)
	if err != nil {
		return err
	}
	urlSigner := storage.NewURLSigner(storage.URLSignerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "meridian-files",
		TTL:           time.Duration(appConfig.SignedURLSeconds) * time.Second,
	})
	artifactService, err := storage.NewService(storage.ServiceConfig{
		Store:  diskStore,
		Signer: urlSigner,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	applicationService, err := applications.NewService(applications.ServiceConfig{
		Database:   db,
		Uploader:   artifactService,
		IDProvider: applications.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	signupService, err := signups.NewService(signups.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Accounts:     accountService,
		Tokens:       tokenIssuer,
		Applications: applicationService,
		Signups:      signupService,
		Artifacts:    artifactService,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
