package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alexberardi/jarvis-recipes-server/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return c.Next() // Skip rate limiting if no user (auth middleware should catch this)
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID)
		ctx := context.Background()

		// Increment counter
		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request but log the error
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			// Get TTL for retry-after header
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		// Add rate limit headers
		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// ImportLimit returns a rate limiter for URL import submissions
func (rl *RateLimiter) ImportLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("import", maxPerHour, time.Hour)
}

// IngestLimit returns a rate limiter for ingestion submissions
func (rl *RateLimiter) IngestLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("ingest", maxPerHour, time.Hour)
}

// PreflightLimit returns a rate limiter for URL preflight checks
func (rl *RateLimiter) PreflightLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("preflight", maxPerMin, time.Minute)
}

// MealPlanLimit returns a rate limiter for meal plan generation
func (rl *RateLimiter) MealPlanLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("mealplan", maxPerHour, time.Hour)
}

// JobReadLimit returns a rate limiter for job polling endpoints
func (rl *RateLimiter) JobReadLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("jobread", maxPerMin, time.Minute)
}
