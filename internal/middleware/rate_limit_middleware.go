package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/verify-api/internal/domain/repository"
)

// RateLimitConfig содержит настройки rate limiting
type RateLimitConfig struct {
	// MaxRequests — максимальное количество запросов за Window
	MaxRequests int
	// Window — временное окно для подсчёта запросов
	Window time.Duration
	// KeyPrefix — префикс для ключей в хранилище счётчиков
	KeyPrefix string
}

// DefaultAPIRateLimitConfig возвращает конфигурацию по умолчанию для
// публичных endpoints.
func DefaultAPIRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 20,              // 20 запросов
		Window:      1 * time.Minute, // за 1 минуту
		KeyPrefix:   "rl:api",
	}
}

// OTPRateLimitConfig выводит строгий лимит для OTP endpoints из
// почасовой квоты на номер: это IP-фильтр перед персистентной квотой,
// а не замена ей.
func OTPRateLimitConfig(hourlyQuota int, window time.Duration) RateLimitConfig {
	if hourlyQuota <= 0 {
		hourlyQuota = 5
	}
	if window <= 0 {
		window = 1 * time.Minute
	}

	maxRequests := hourlyQuota * int(window.Seconds()) / 3600
	if maxRequests < 1 {
		maxRequests = 1
	}

	return RateLimitConfig{
		MaxRequests: maxRequests,
		Window:      window,
		KeyPrefix:   "rl:otp",
	}
}

// RateLimiter создаёт middleware для rate limiting поверх счётчиков в
// Redis (или в памяти для тестов и single-node развертываний).
type RateLimiter struct {
	store repository.RateLimitStore
}

// NewRateLimiter создает новый RateLimiter
func NewRateLimiter(store repository.RateLimitStore) *RateLimiter {
	return &RateLimiter{store: store}
}

// Limit возвращает Gin middleware с заданной конфигурацией
// Ключ формируется из IP + endpoint path
func (rl *RateLimiter) Limit(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		path := c.FullPath() // Gin route pattern, e.g. "/api/otp/send"
		if path == "" {
			path = c.Request.URL.Path
		}

		key := fmt.Sprintf("%s:%s:%s", cfg.KeyPrefix, clientIP, path)
		rl.enforce(c, cfg, key, fmt.Sprintf("IP=%s path=%s", clientIP, path))
	}
}

// LimitByIP ограничивает количество запросов по IP (без привязки к path)
// Полезно для глобального лимита на группу endpoints
func (rl *RateLimiter) LimitByIP(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		key := fmt.Sprintf("%s:%s", cfg.KeyPrefix, clientIP)
		rl.enforce(c, cfg, key, fmt.Sprintf("IP=%s (group)", clientIP))
	}
}

func (rl *RateLimiter) enforce(c *gin.Context, cfg RateLimitConfig, key, who string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	count, ttl, err := rl.store.Incr(ctx, key, cfg.Window)
	if err != nil {
		// При ошибке хранилища пропускаем запрос (fail-open), но логируем
		log.Printf("[RateLimiter] Store error for key %s: %v. Allowing request (fail-open).", key, err)
		c.Next()
		return
	}

	remaining := cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	retryAfter := int(ttl.Seconds())
	if retryAfter < 0 {
		retryAfter = int(cfg.Window.Seconds())
	}

	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
	c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", retryAfter))

	if int(count) > cfg.MaxRequests {
		log.Printf("[RateLimiter] Rate limit exceeded for %s. Count=%d, Limit=%d",
			who, count, cfg.MaxRequests)

		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many requests. Please try again later.",
			"error_type":  "rate_limited",
			"retry_after": retryAfter,
		})
		return
	}

	c.Next()
}
