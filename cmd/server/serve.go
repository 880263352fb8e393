package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/activity"
	"github.com/homesapp/rentals/internal/cache"
	"github.com/homesapp/rentals/internal/config"
	"github.com/homesapp/rentals/internal/eventbus"
	"github.com/homesapp/rentals/internal/logger"
	"github.com/homesapp/rentals/internal/seed"
	"github.com/homesapp/rentals/internal/server"
	"github.com/homesapp/rentals/internal/store"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the live feed and the billing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			withSeed, _ := cmd.Flags().GetBool("seed")

			cfg, err := load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
			defer log.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, timeline, closeStore, err := openStore(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer closeStore()

			if withSeed {
				if err := seed.Seed(ctx, st, time.Now(), log); err != nil {
					return fmt.Errorf("seeding: %w", err)
				}
			}

			c, closeCache, err := openCache(ctx, cfg.Redis, log)
			if err != nil {
				return err
			}
			defer closeCache()

			opts := []server.Option{server.WithActivityStore(timeline)}
			if cfg.Kafka.Enabled() {
				fwd, err := eventbus.NewKafkaForwarder(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, log)
				if err != nil {
					return fmt.Errorf("connecting to kafka: %w", err)
				}
				opts = append(opts, server.WithKafka(fwd))
				log.Info("forwarding events to kafka",
					zap.Strings("brokers", cfg.Kafka.Brokers),
					zap.String("topic", cfg.Kafka.Topic),
				)
			}

			srv, err := server.New(cfg, st, c, log, opts...)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().Bool("seed", false, "load demo data when the database is empty")
	return cmd
}

// openStore returns the entity store and the activity store that share its
// database.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (store.Store, activity.Store, func(), error) {
	if cfg.DSN == "" {
		log.Warn("no database configured, using the in-memory store")
		return store.NewMemoryStore(), activity.NewMemoryStore(), func() {}, nil
	}
	st, err := store.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("database ready", zap.String("dsn", cfg.DSN))
	return st, activity.NewSQLStore(st.DB()), func() {
		if err := st.Close(); err != nil {
			log.Warn("closing database", zap.Error(err))
		}
	}, nil
}

func openCache(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (cache.Cache, func(), error) {
	if cfg.Addr == "" {
		return cache.NewMemoryCache(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	log.Info("redis cache ready", zap.String("addr", cfg.Addr), zap.String("namespace", cfg.Namespace))
	return cache.NewRedisCache(client, cfg.Namespace), func() { client.Close() }, nil
}
