package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadnet/acadnet/auth"
	"github.com/acadnet/acadnet/federation"
	"github.com/acadnet/acadnet/internal/config"
	"github.com/acadnet/acadnet/mail"
	"github.com/acadnet/acadnet/migrations"
	"github.com/acadnet/acadnet/otp"
	pgotprepo "github.com/acadnet/acadnet/otp/repopg"
	"github.com/acadnet/acadnet/server"
	"github.com/acadnet/acadnet/server/flowsession"
	"github.com/acadnet/acadnet/server/oauthstate"
	"github.com/acadnet/acadnet/token"
	"github.com/acadnet/acadnet/token/refresh"
	pgsessionrepo "github.com/acadnet/acadnet/token/refresh/repopg"
	redissessionrepo "github.com/acadnet/acadnet/token/refresh/reporedis"
	pgaccountrepo "github.com/acadnet/acadnet/users/repopg"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	for {
		if err := run(logger); err != nil {
			logger.Fatal().Err(err).Msg("server exited")
		} else {
			break
		}
	}
	logger.Info().Msg("server stopped")
}

func run(logger zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}

	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	displayAppname(cfg.AppName)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv, err := buildServer(cfg, db, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func openDB(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("goose.SetDialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return nil, fmt.Errorf("goose.Up: %w", err)
	}

	return db, nil
}

func buildServer(cfg config.Config, db *sql.DB, logger zerolog.Logger) (*server.Server, error) {
	repos := auth.Repos{
		Users:    pgaccountrepo.NewPgAccountRepo(db),
		Sessions: sessionRepo(cfg, db, logger),
		OTPs:     pgotprepo.NewPgOTPRepo(db),
	}

	codec := token.NewCodec(
		cfg.Tokens.AccessSecret,
		cfg.Tokens.RefreshSecret,
		token.WithIssuer(cfg.Tokens.Issuer),
		token.WithTokenExpiry(cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL),
	)

	service, err := auth.NewService(
		repos,
		codec,
		refresh.NewManager(repos.Sessions, codec),
		otp.NewLedger(repos.OTPs, repos.Users),
		mailSender(cfg, logger),
		federation.NewResolver(repos.Users),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("auth.NewService: %w", err)
	}

	providers, err := federatedProviders(cfg, logger)
	if err != nil {
		return nil, err
	}

	return server.New(
		cfg,
		service,
		repos,
		providers,
		oauthstate.NewInMemoryRepo(),
		flowsession.NewInMemoryRepo(),
		logger,
	)
}

func sessionRepo(cfg config.Config, db *sql.DB, logger zerolog.Logger) refresh.Repo {
	if cfg.Redis.Addr == "" {
		return pgsessionrepo.NewPgSessionRepo(db)
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis session store")
	return redissessionrepo.NewRedisSessionRepo(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))
}

func mailSender(cfg config.Config, logger zerolog.Logger) mail.Sender {
	if cfg.Mail.PostmarkServerToken == "" || cfg.Mail.SenderEmail == "" {
		logger.Warn().Msg("no mail provider configured, OTP mail will be suppressed")
		return mail.NewLogSender(logger)
	}
	return mail.NewPostmarkSender(cfg.Mail.PostmarkServerToken, cfg.Mail.PostmarkAccountToken, cfg.Mail.SenderEmail)
}

func federatedProviders(cfg config.Config, logger zerolog.Logger) ([]federation.Provider, error) {
	var providers []federation.Provider

	if cfg.OAuth.GitHubClientID != "" {
		providers = append(providers, federation.NewGitHubProvider(
			cfg.OAuth.GitHubClientID,
			cfg.OAuth.GitHubClientSecret,
			cfg.OAuth.GitHubRedirectURL,
		))
	}

	if cfg.OAuth.GoogleClientID != "" {
		// OIDC discovery happens here, so Google needs network at startup.
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		google, err := federation.NewGoogleProvider(
			ctx,
			cfg.OAuth.GoogleClientID,
			cfg.OAuth.GoogleClientSecret,
			cfg.OAuth.GoogleRedirectURL,
		)
		if err != nil {
			return nil, fmt.Errorf("federation.NewGoogleProvider: %w", err)
		}
		providers = append(providers, google)
	}

	if len(providers) == 0 {
		logger.Info().Msg("no federated providers configured")
	}

	return providers, nil
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
