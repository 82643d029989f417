package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/application/notification"
	"github.com/go-otp-auth/internal/application/session"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/infrastructure/awscfg"
	"github.com/go-otp-auth/internal/infrastructure/dynamo"
	"github.com/go-otp-auth/internal/infrastructure/metrics"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/infrastructure/postgres"
	s3infra "github.com/go-otp-auth/internal/infrastructure/s3"
	"github.com/go-otp-auth/internal/infrastructure/smtp"
	"github.com/go-otp-auth/internal/infrastructure/sns"
	"github.com/go-otp-auth/internal/pkg/clock"
	"github.com/go-otp-auth/internal/pkg/hash"
	"github.com/go-otp-auth/internal/pkg/logging"
	transporthttp "github.com/go-otp-auth/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.New(cfg.LogLevel, cfg.AppEnv)
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	ctx := context.Background()

	store, closer, err := newStore(ctx, cfg)
	if err != nil {
		fatal("account store", err)
	}
	defer closer.Close()

	channel, err := newChannel(ctx, cfg)
	if err != nil {
		fatal("notification channel", err)
	}

	// Templates from S3 are optional; the embedded ones are used otherwise.
	var templates notification.TemplateSource
	if cfg.TemplateBucket != "" {
		awsCfg, err := awscfg.Load(ctx, cfg, cfg.AWSRegion)
		if err != nil {
			fatal("aws config", err)
		}
		templates = s3infra.NewTemplateStore(s3infra.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.TemplateBucket, cfg.TemplatePrefix)
	}
	renderer, err := notification.NewRenderer(ctx, cfg.AppName, templates)
	if err != nil {
		fatal("otp templates", err)
	}
	dispatcher := notification.NewDispatcher(channel, renderer)

	// JWT provider (optional: sessions fall back to opaque tokens if keys are missing).
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		slog.Warn("JWT provider not available, issuing opaque tokens", "err", err)
	}
	issuer := session.NewIssuer(jwtProvider)

	recorder := metrics.New("otpauth")
	authSvc := auth.NewService(auth.ServiceDeps{
		Store:           store,
		PasswordHasher:  hash.NewBcrypt(cfg.BcryptCost, cfg.HashPepper, hash.PurposePassword),
		CodeHasher:      hash.NewBcrypt(cfg.BcryptCost, cfg.HashPepper, hash.PurposeOTP),
		Dispatcher:      dispatcher,
		Issuer:          issuer,
		Policy:          cfg.OTP(),
		Clock:           clock.New(),
		StoreTimeout:    cfg.StoreTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
		PendingTTL:      cfg.PendingTTL,
		Metrics:         recorder,
	})

	deps := &transporthttp.Deps{AuthService: authSvc, Delivery: dispatcher, Metrics: recorder.Handler()}
	if jwtProvider != nil {
		deps.TokenVerifier = jwtProvider
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting",
			"port", cfg.AppPort,
			"env", cfg.AppEnv,
			"store", cfg.StoreDriver,
			"channel", channel.Method(),
			"sessions", issuer.Kind(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	slog.Info("server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newStore opens the account store selected by STORE_DRIVER and makes sure
// its schema exists.
func newStore(ctx context.Context, cfg *config.Config) (auth.AccountStore, io.Closer, error) {
	switch cfg.StoreDriver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewAccountRepo(db), db, nil
	case "dynamo", "":
		awsCfg, err := awscfg.Load(ctx, cfg, cfg.AWSRegion)
		if err != nil {
			return nil, nil, err
		}
		client := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
		if err := dynamo.Bootstrap(ctx, client, cfg.DynamoTables); err != nil {
			return nil, nil, err
		}
		return dynamo.NewAccountRepo(client, cfg.DynamoTables.Accounts), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// newChannel builds the primary delivery channel selected by DISPATCH_CHANNEL.
func newChannel(ctx context.Context, cfg *config.Config) (notification.Channel, error) {
	switch cfg.DispatchChannel {
	case "sns":
		if cfg.SNSTopicARN == "" {
			return nil, errors.New("SNS_TOPIC_ARN is required for DISPATCH_CHANNEL=sns")
		}
		awsCfg, err := awscfg.Load(ctx, cfg, cfg.SNSRegion)
		if err != nil {
			return nil, err
		}
		return notification.NewQueueChannel(sns.NewPublisher(sns.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.SNSTopicARN)), nil
	case "console":
		return notification.NewConsoleChannel(), nil
	case "smtp", "":
		return notification.NewEmailChannel(smtp.NewMailer(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown DISPATCH_CHANNEL %q", cfg.DispatchChannel)
	}
}

func fatal(what string, err error) {
	slog.Error("startup failed", "component", what, "err", err)
	os.Exit(1)
}
