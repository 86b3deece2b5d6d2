package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/poofware/patrol-service/internal/config"
	"github.com/poofware/patrol-service/internal/repositories"
	"github.com/poofware/patrol-service/internal/utils"
	"github.com/redis/go-redis/v9"
)

const (
	maxRetries     = 5
	connectTimeout = 5 * time.Second
	initialBackoff = 500 * time.Millisecond
)

// App holds the process-wide connections. Redis and Cache are nil when
// REDIS_URL is unset.
type App struct {
	Config *config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Cache  repositories.ConsumedChallengeCache
}

func NewApp(cfg *config.Config) (*App, error) {
	var (
		dbPool  *pgxpool.Pool
		err     error
		backoff = initialBackoff
	)

	for i := 1; i <= maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		dbPool, err = newDBPool(ctx, cfg.DBUrl)
		cancel()
		if err == nil {
			utils.Logger.Infof("Successfully connected to database on attempt %d", i)
			break
		}

		utils.Logger.WithError(err).Warnf(
			"Failed to connect to database on attempt %d/%d. Retrying in %v...",
			i, maxRetries, backoff,
		)

		if i == maxRetries {
			return nil, fmt.Errorf("unable to connect to database after %d attempts: %w", maxRetries, err)
		}

		time.Sleep(backoff)
		backoff *= 2
	}

	a := &App{
		Config: cfg,
		DB:     dbPool,
	}

	if cfg.RedisURL == "" {
		utils.Logger.Info("REDIS_URL not set; replay fast-path cache disabled.")
		return a, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	a.Redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		// The cache is optional; the ledger alone is authoritative.
		utils.Logger.WithError(err).Warn("Redis unreachable at startup; continuing, lookups will fall through to Postgres")
	}
	a.Cache = repositories.NewConsumedChallengeCache(a.Redis, cfg.AppName+":consumed")
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			utils.Logger.WithError(err).Warn("Error closing Redis client.")
		} else {
			utils.Logger.Info("Redis connection closed.")
		}
	}
	if a.DB != nil {
		a.DB.Close()
		utils.Logger.Info("Database connection closed.")
	}
}

// newDBPool constructs the pgx pool.
//
//   - MaxConnIdleTime retires idle sockets before an upstream proxy drops them
//   - HealthCheckPeriod keeps every conn warm
func newDBPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConnIdleTime = 2 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	return pgxpool.ConnectConfig(ctx, cfg)
}
