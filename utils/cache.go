package utils

import (
	"context"
	"log"
	"time"

	"travelpay/config"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

var (
	// CacheClient backs the submission lock and the PesaPal IPN store.
	CacheClient *redis.Client
	// QueueClient shares the asynq database; used for health checks only.
	QueueClient *redis.Client
)

// InitCache connects to Redis and verifies both logical databases respond.
func InitCache() {
	CacheClient = newRedisClient(config.AppConfig.RedisCacheDB)
	QueueClient = newRedisClient(config.AppConfig.RedisQueueDB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := CacheClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis cache DB %d: %v", config.AppConfig.RedisCacheDB, err)
	}
	if err := QueueClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis queue DB %d: %v", config.AppConfig.RedisQueueDB, err)
	}
	log.Println("Redis cache and queue clients initialized")
}

// GetCacheClient returns the cache client, connecting on first use.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// QueueRedisOpt is the asynq connection for the payment task queue.
func QueueRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

func newRedisClient(db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
}
