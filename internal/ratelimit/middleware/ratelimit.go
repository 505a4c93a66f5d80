package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"biblioteca/internal/ratelimit"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/platform/httputil"
	"biblioteca/pkg/requestcontext"
)

// Limiter decides whether a client key may proceed.
type Limiter interface {
	Allow(key string) ratelimit.Result
}

// Recorder counts rejected requests.
type Recorder interface {
	IncrementRateLimited(route string)
}

const MsgTooManyRequests = "Demasiados intentos, espera un momento"

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	recorder Recorder
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithRecorder(r Recorder) Option {
	return func(m *Middleware) {
		m.recorder = r
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit throttles by client IP. route labels the rejection metric.
func (m *Middleware) RateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result := m.limiter.Allow(route + "|" + ip)
			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"route", route,
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.recorder != nil {
					m.recorder.IncrementRateLimited(route)
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, MsgTooManyRequests))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
}

func retryAfterSeconds(result ratelimit.Result) int {
	return max(1, int(math.Ceil(result.RetryAfter.Seconds())))
}
