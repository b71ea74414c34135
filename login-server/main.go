// Package main runs the login server: account creation, PIN credential
// storage and PIN login over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/authserver"
)

// Version is set at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", "/etc/loginkit/server.yaml", "Path to configuration file")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.Store.Backend = "sqlite"
		cfg.Store.Path = *dbPath
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("version", Version).
		Str("config", *configPath).
		Str("backend", cfg.Store.Backend).
		Msg("Login server starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open login store")
	}
	defer store.Close()

	var opts []authserver.Option
	if cfg.APIKey != "" {
		opts = append(opts, authserver.WithAPIKey(cfg.APIKey))
	} else {
		log.Warn().Msg("No API key configured, /v2 endpoints are open")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           authserver.New(store, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
		cancel()
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("Listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}

	<-ctx.Done()
	log.Info().Msg("Login server shutdown complete")
}

func openStore(ctx context.Context, cfg StoreConfig) (authserver.RecordStore, error) {
	switch cfg.Backend {
	case "dynamodb":
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
		if err != nil {
			return nil, err
		}
		log.Info().Str("table", cfg.Table).Str("region", cfg.Region).Msg("Using DynamoDB store")
		return authserver.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Table), nil
	default:
		var dek []byte
		if cfg.DataKey.Enabled() {
			source, err := cfg.DataKey.Build(ctx)
			if err != nil {
				return nil, err
			}
			if dek, err = source.DataKey(ctx); err != nil {
				return nil, err
			}
		}
		log.Info().Str("path", cfg.Path).Bool("sealed", dek != nil).Msg("Using SQLite store")
		return authserver.NewSQLiteStore(cfg.Path, dek)
	}
}
