// Package bootstrap turns configuration into the running persistence stack
// and registry service shared by the server and the batch importer.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/registrysync/internal/config"
	"github.com/JonMunkholm/registrysync/internal/migrations"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/store/filestore"
	"github.com/JonMunkholm/registrysync/internal/store/gcsmirror"
	"github.com/JonMunkholm/registrysync/internal/store/memstore"
	"github.com/JonMunkholm/registrysync/internal/store/pgstore"
	"github.com/JonMunkholm/registrysync/internal/store/redismirror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Stores holds the backends selected by configuration and what must be
// closed on exit.
type Stores struct {
	Local  persist.LocalStore
	Remote persist.RemoteStore
	// RateStore is set only when rate limit counters live in Redis.
	RateStore limiter.Store

	closers []func() error
}

// Close releases every opened backend in reverse order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}

// OpenStores connects the local store, the remote mirror and the shared rate
// limit store that cfg selects. Postgres migrations run first when enabled.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{}

	local, err := openLocal(ctx, cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Local = local

	var redisClient redis.UniversalClient
	switch cfg.Remote.Mirror {
	case config.MirrorRedis:
		m, err := redismirror.Open(ctx, redismirror.Options{
			URL:      cfg.Remote.RedisURL,
			Prefix:   cfg.Remote.RedisKeyPrefix,
			PoolSize: cfg.Remote.RedisPoolSize,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open redis mirror: %w", err)
		}
		s.closers = append(s.closers, m.Close)
		s.Remote = m
		redisClient = m.Client()
		slog.Info("remote mirror configured", "backend", "redis", "prefix", cfg.Remote.RedisKeyPrefix)

	case config.MirrorGCS:
		m, err := gcsmirror.Open(ctx, gcsmirror.Options{
			Bucket:   cfg.Remote.GCSBucket,
			Prefix:   cfg.Remote.GCSPrefix,
			Endpoint: cfg.Remote.GCSEndpoint,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open gcs mirror: %w", err)
		}
		s.closers = append(s.closers, m.Close)
		s.Remote = m
		slog.Info("remote mirror configured", "backend", "gcs", "bucket", cfg.Remote.GCSBucket)

	default:
		slog.Info("no remote mirror configured")
	}

	if cfg.Rate.Enabled && cfg.Rate.Store == "redis" {
		if redisClient == nil {
			redisClient, err = dialRedis(ctx, cfg.Remote)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.closers = append(s.closers, redisClient.Close)
		}
		store, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix:   cfg.Remote.RedisKeyPrefix + ":ratelimit",
			MaxRetry: 3,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create rate limit store: %w", err)
		}
		s.RateStore = store
	}

	return s, nil
}

func openLocal(ctx context.Context, cfg *config.Config, s *Stores) (persist.LocalStore, error) {
	switch cfg.Local.Store {
	case config.StorePostgres:
		if cfg.Local.Migrate {
			if err := migrations.Up(cfg.Local.DatabaseURL); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool, err := openPool(ctx, cfg.Local)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		return pgstore.New(pool, pgstore.WithHistoryLimit(cfg.Local.HistoryLimit)), nil

	case config.StoreMemory:
		slog.Warn("using in-memory local store, registry is lost on restart")
		return memstore.New(), nil

	default:
		fs, err := filestore.New(cfg.Local.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		slog.Info("using file store", "dir", cfg.Local.Dir)
		return fs, nil
	}
}

func openPool(ctx context.Context, lc config.LocalConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(lc.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(lc.MaxConns)
	poolConfig.MinConns = int32(lc.MinConns)
	poolConfig.MaxConnLifetime = lc.MaxConnLifetime
	poolConfig.MaxConnIdleTime = lc.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(lc.DatabaseURL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func dialRedis(ctx context.Context, rc config.RemoteConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(rc.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if rc.RedisPoolSize > 0 {
		opts.PoolSize = rc.RedisPoolSize
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
