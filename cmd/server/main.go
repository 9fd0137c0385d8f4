package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	httpapi "github.com/accord-hub/accord/internal/api/http"
	appEvent "github.com/accord-hub/accord/internal/application/event"
	appNegotiation "github.com/accord-hub/accord/internal/application/negotiation"
	"github.com/accord-hub/accord/internal/config"
	"github.com/accord-hub/accord/internal/domain/event"
	"github.com/accord-hub/accord/internal/domain/negotiation"
	"github.com/accord-hub/accord/internal/infrastructure/postgres"
	"github.com/accord-hub/accord/internal/infrastructure/redisstream"
	"github.com/accord-hub/accord/internal/infrastructure/sqlite"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	app := &cli.App{
		Name:  "accord",
		Usage: "Multi-participant scheduling negotiation engine.",
		Commands: []*cli.Command{
			serveCommand(logger),
			sweepCommand(logger),
			migrateCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("accord failed")
	}
}

func serveCommand(logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the expiration sweeper.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			publisher, closePublisher, err := openPublisher(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closePublisher()

			materializer := appEvent.NewMaterializer(publisher, logger)
			negotiationSvc := appNegotiation.NewService(store, materializer, appNegotiation.Config{
				MaxCounterOptions: cfg.MaxCounterOptions,
				MaxCreateOptions:  cfg.MaxCreateOptions,
				MaxParticipants:   cfg.MaxParticipants,
				MaxTxRetries:      cfg.MaxTxRetries,
			}, logger)
			sweeper := appNegotiation.NewSweeper(store, appNegotiation.SweeperConfig{
				BatchSize: cfg.SweepBatchSize,
				Interval:  cfg.SweepInterval,
			}, logger)

			apiServer := httpapi.NewServer(
				negotiationSvc,
				store,
				httpapi.HeaderIdentity{Header: cfg.IdentityHeader},
				cfg.RequestTimeout,
				logger,
			)
			httpServer := &http.Server{
				Addr:         cfg.ServerAddr,
				Handler:      apiServer.Router(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: cfg.RequestTimeout + 5*time.Second,
				IdleTimeout:  60 * time.Second,
			}

			// background loops
			go sweeper.Run(ctx)

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.ServerAddr).Str("store", cfg.StoreDriver).Msg("http server started")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return fmt.Errorf("http server failed: %w", err)
			}

			// graceful shutdown
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info().Msg("shutting down")
			return httpServer.Shutdown(ctxShutdown)
		},
	}
}

func sweepCommand(logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Expire overdue negotiations once and exit.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			store, closeStore, err := openStore(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			sweeper := appNegotiation.NewSweeper(store, appNegotiation.SweeperConfig{BatchSize: cfg.SweepBatchSize}, logger)
			count, err := sweeper.Sweep(c.Context)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			logger.Info().Int("expired", count).Msg("sweep complete")
			return nil
		},
	}
}

func migrateCommand(logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations and exit.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			_, closeStore, err := openStore(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			closeStore()
			logger.Info().Str("store", cfg.StoreDriver).Msg("migrations applied")
			return nil
		},
	}
}

// openStore connects the configured driver and applies migrations.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (negotiation.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("db error: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db error: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migration error: %w", err)
		}
		logger.Debug().Msg("postgres migrations applied")
		return postgres.NewStore(pool), pool.Close, nil
	}
}

// openPublisher returns the Redis stream publisher when REDIS_URL is set and
// falls back to logging events.
func openPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (event.Publisher, func(), error) {
	if cfg.RedisURL == "" {
		return appEvent.NewLogPublisher(logger), func() {}, nil
	}
	client, err := redisstream.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis error: %w", err)
	}
	publisher := redisstream.NewPublisher(client, cfg.EventStream, logger)
	return publisher, func() { _ = publisher.Close() }, nil
}
