package http

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/scheduling-core/internal/auth"
)

const (
	moduleHeader = "X-Module"
	apiKeyHeader = "X-API-Key"

	// maxTrackedLimiters bounds the per-caller limiter map; it is reset when full.
	maxTrackedLimiters = 4096
)

// KeyVerifier checks a module's API key.
type KeyVerifier interface {
	Verify(module, key string) error
}

// RequireModuleKey authenticates callers by module name and API key. The
// health endpoint is left open.
func RequireModuleKey(verifier KeyVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			module := r.Header.Get(moduleHeader)
			key := r.Header.Get(apiKeyHeader)
			if module == "" || key == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingModuleKey)
				return
			}

			if err := verifier.Verify(module, key); err != nil {
				switch {
				case errors.Is(err, auth.ErrUnknownModule), errors.Is(err, auth.ErrKeyMismatch):
					responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidModuleKey)
				default:
					responder.loggerFor(r.Context()).ErrorContext(r.Context(), "failed to verify module key", "module", module, "error", err)
					responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: "API キーの検証中にエラーが発生しました。"})
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithModule(r.Context(), module)))
		})
	}
}

// RateLimit applies a token bucket per calling module, or per remote host for
// unauthenticated requests.
func RateLimit(limit rate.Limit, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if limiter, ok := limiters[key]; ok {
			return limiter
		}
		if len(limiters) >= maxTrackedLimiters {
			limiters = make(map[string]*rate.Limiter)
		}
		limiter := rate.NewLimiter(limit, burst)
		limiters[key] = limiter
		return limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)
			reservation := limiterFor(key).Reserve()
			if !reservation.OK() {
				responder.writeError(r.Context(), w, http.StatusTooManyRequests, errRateLimited)
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				seconds := int(delay.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				responder.writeError(r.Context(), w, http.StatusTooManyRequests, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if module, ok := ModuleFromContext(r.Context()); ok && module != "" {
		return "module:" + module
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}
