package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil so callers
// fall back to running without the cache.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.RedisDialTimeout,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, cache disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return client
}

// ConnectPostgresPool opens and pings a pgx pool. It returns nil for an
// empty URL or when the database cannot be reached.
func ConnectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BuildRepository picks the Postgres repository when DATABASE_URL is set
// and the in-memory one otherwise. The returned func releases the pool.
func BuildRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (scheduling.Repository, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set, using in-memory repository")
		return scheduling.NewMemoryRepository(), func() {}, nil
	}

	pool := ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		return nil, nil, fmt.Errorf("bootstrap: postgres unavailable")
	}
	logger.Info("postgres connected")
	return scheduling.NewPostgresRepository(pool), pool.Close, nil
}

// BuildSessionStore returns the Redis session store when configured and a
// client is available, and the process-local store otherwise. Redis sessions
// get their own client on SessionRedisDB, so FLUSHDB from the cache admin
// endpoint does not end conversations in progress. The returned func closes
// that client.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (conversation.SessionStore, func()) {
	if logger == nil {
		logger = logging.Default()
	}
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.SessionTTL
	}
	if cfg == nil || !cfg.UseRedisSessions() {
		return conversation.NewMemorySessionStore(ttl), func() {}
	}
	if redisClient == nil {
		logger.Warn("SESSION_STORE=redis but redis is unavailable, using memory sessions")
		return conversation.NewMemorySessionStore(ttl), func() {}
	}

	opts := *redisClient.Options()
	if opts.DB == cfg.SessionRedisDB {
		logger.Warn("sessions share the cache redis db, clearing the cache also clears sessions", "db", opts.DB)
		return conversation.NewRedisSessionStore(redisClient, ttl), func() {}
	}
	opts.DB = cfg.SessionRedisDB
	sessionClient := redis.NewClient(&opts)
	logger.Info("conversation sessions stored in redis", "db", opts.DB, "ttl", ttl)
	return conversation.NewRedisSessionStore(sessionClient, ttl), func() { _ = sessionClient.Close() }
}
