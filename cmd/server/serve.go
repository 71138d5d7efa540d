package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/marketplace/internal/cache"
	"github.com/example/marketplace/internal/config"
	"github.com/example/marketplace/internal/database"
	"github.com/example/marketplace/internal/handlers"
	"github.com/example/marketplace/internal/routes"
	"github.com/example/marketplace/internal/services"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	*rootOptions
	SkipMigrate bool
}

func newServeCommand(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipMigrate, "skip-migrate", false, "do not migrate the schema on startup")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	cfg, log, err := setup(opts.rootOptions)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.Options{Verbose: opts.Verbose}, log)
	if err != nil {
		return err
	}
	if !opts.SkipMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	kv, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = kv.Close() }()

	app := routes.NewApp(cfg, log)
	routes.Register(app, cfg, buildServices(cfg, db, kv, log), log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func buildServices(cfg *config.Config, db *gorm.DB, kv *cache.Client, log *zap.Logger) routes.Services {
	accounts := services.NewAccountService(db, cfg.JWTSecret, cfg.TokenExpires)
	mailer := services.NewMailer(services.MailerConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, log)
	paystack := services.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.HTTPTimeout, log)
	media := services.NewCloudinaryClient("", cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.HTTPTimeout, log)
	orders := services.NewOrderService(db, cfg.ServiceFee, log)

	return routes.Services{
		Accounts: accounts,
		OTP:      services.NewOTPService(kv, mailer, accounts, cfg.OTPTTL, cfg.OTPMaxRetries, log),
		Products: services.NewProductService(db, media, log),
		Carts:    services.NewCartService(db),
		Orders:   orders,
		Payments: services.NewPaymentService(db, paystack, orders, cfg.AppLiveURL, log),
		Webhooks: paystack,
		AI:       services.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.HTTPTimeout, log),
		Health: map[string]handlers.Pinger{
			"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
			"cache":    kv.Ping,
		},
	}
}
