package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iudanet/jiucom/internal/server/handlers"
	"github.com/iudanet/jiucom/pkg/api"
)

// cleanupInterval как часто удаляются простаивающие limiter'ы
const cleanupInterval = 5 * time.Minute

// KeyExtractor возвращает ключ, по которому считается лимит
type KeyExtractor func(*http.Request) string

// RateLimiter хранит token bucket на каждый ключ (обычно IP адрес)
type RateLimiter struct {
	lastCleanup time.Time
	limiters    sync.Map // map[string]*rate.Limiter
	logger      *slog.Logger
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
}

// NewRateLimiter создает limiter: rps запросов в секунду с burst запасом
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		rate:        rate.Limit(rps),
		burst:       burst,
		logger:      logger,
		lastCleanup: time.Now(),
	}
}

// Allow проверяет, разрешен ли запрос для данного ключа.
// Если нет, возвращает через сколько стоит повторить.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	limiter := rl.limiter(key)
	if limiter.Allow() {
		return true, 0
	}

	// Узнаем, когда появится следующий токен, не расходуя его
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	return false, delay
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup удаляет limiter'ы с полным bucket: их ключи давно не приходили
func (rl *RateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Middleware ограничивает частоту запросов по ключу из extractor
func (rl *RateLimiter) Middleware(extractor KeyExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractor(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, delay := rl.Allow(key)
			if !allowed {
				retryAfter := max(int(delay.Seconds()), 1)

				rl.logger.WarnContext(r.Context(), "Rate limit exceeded",
					"key", key,
					"method", r.Method,
					"path", r.URL.Path,
					"retry_after", retryAfter,
				)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				handlers.SendError(w, rl.logger, api.CodeTooManyRequest, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware создает middleware с лимитом по IP клиента
func RateLimitMiddleware(rps float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	return NewRateLimiter(rps, burst, logger).Middleware(ClientIP)
}

// ClientIP извлекает IP адрес клиента из запроса
// Проверяет заголовки X-Forwarded-For и X-Real-IP для прокси
func ClientIP(r *http.Request) string {
	// Берем первый IP из списка (реальный клиент)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
