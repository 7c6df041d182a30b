package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/zentask/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// DefaultTipsRate is the default rate for tip requests per client IP
	DefaultTipsRate = "10-M"

	rateLimitPrefix = "zentask_tips"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRateLimitStore returns a Redis-backed store when client is set and an
// in-process store otherwise
func NewRateLimitStore(client *redis.Client) (limiter.Store, error) {
	opts := limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	}
	if client == nil {
		return memorystore.NewStoreWithOptions(opts), nil
	}
	store, err := redisstore.NewStoreWithOptions(client, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}
	return store, nil
}

// RateLimit limits requests per client IP to rate, given in limiter's
// formatted notation such as "10-M". Limited requests get a JSON 429.
func RateLimit(rate string, store limiter.Store, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultTipsRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	instance := limiter.New(store, parsed)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Info("rate_limit_exceeded",
				zap.String("client_ip", request.ClientIP(r)),
				zap.String("request_id", request.IDFromContext(r.Context())),
			)
			respondErrorJSON(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded, try again later", logger)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("rate_limit_store_error", zap.Error(err))
			respondErrorJSON(w, r, http.StatusInternalServerError, "Internal Server Error", "Rate limiter unavailable", logger)
		}),
	)
	return mw.Handler, nil
}
