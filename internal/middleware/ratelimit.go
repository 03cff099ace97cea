package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter решает, можно ли обработать ещё один запрос с ключом key.
// Если нельзя, возвращается пауза до следующей попытки.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// LocalLimiter ограничивает частоту запросов в пределах одного процесса.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLocalLimiter создаёт лимитер, пропускающий не более requests запросов за window на ключ.
func NewLocalLimiter(requests int, window time.Duration) *LocalLimiter {
	if requests <= 0 {
		requests = 1
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
	}
}

func (l *LocalLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Allow реализует Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	lim := l.get(key)
	now := time.Now()

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// RedisLimiter ограничивает частоту запросов фиксированным окном со счётчиком в Redis,
// поэтому лимит общий для всех экземпляров сервиса.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	requests int64
	window   time.Duration
}

// NewRedisLimiter создаёт лимитер на общем хранилище Redis.
func NewRedisLimiter(client *redis.Client, prefix string, requests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		prefix:   prefix,
		requests: int64(requests),
		window:   window,
	}
}

// Allow реализует Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	slot := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit counter: %w", err)
	}

	if incr.Val() <= l.requests {
		return true, 0, nil
	}

	resetAt := time.Unix(0, (slot+1)*int64(l.window))
	return false, time.Until(resetAt), nil
}

// KeyFunc вычисляет ключ лимита для запроса.
type KeyFunc func(r *http.Request) string

// ClientIP возвращает IP-адрес клиента без порта.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit отвечает 429 с заголовком Retry-After, когда лимит для ключа исчерпан.
// Если хранилище лимитов недоступно, запрос пропускается.
func RateLimit(limiter Limiter, keyFn KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Path + ":" + keyFn(r)

			ok, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
