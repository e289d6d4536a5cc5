package httpapi

import (
	"compress/gzip"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskrouter/internal/apperr"
	"taskrouter/internal/ids"
	"taskrouter/internal/logging"
)

var errRateLimited = apperr.UnavailableError("rate limit exceeded")

// Middleware wraps handler h, following the teacher's router.go fixed
// ordering: observability (left to the caller, since tracing spans are
// created per-operation inside the handlers themselves, not generically
// here), logging, request timeout, compression, CORS.
type Middleware func(http.Handler) http.Handler

// chain applies middlewares in the order given, so the first one wraps h
// directly (innermost) and the last one is outermost and sees each request
// first — matching router.go's "handler = mw(handler)" stacking read top to
// bottom.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, mw := range mws {
		h = mw(h)
	}
	return h
}

type logIDKey struct{}

func logIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(logIDKey{}).(string)
	return v
}

func resolveLogID(r *http.Request) string {
	for _, header := range []string{"X-Log-Id", "X-Request-Id", "X-Correlation-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}

// LoggingMiddleware stamps every request with a log id (reused from the
// caller's header if present, generated otherwise), echoes it back on
// X-Log-Id, and logs method/path/remote-addr/status/duration.
func LoggingMiddleware(logger logging.Logger) Middleware {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logID := resolveLogID(r)
			if logID == "" {
				logID = ids.New()
			}
			w.Header().Set("X-Log-Id", logID)
			ctx := context.WithValue(r.Context(), logIDKey{}, logID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			started := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.Info("http request",
				"log_id", logID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", clientIP(r),
				"status", rec.status,
				"duration_ms", time.Since(started).Milliseconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestTimeoutMiddleware bounds non-streaming requests; SSE endpoints are
// exempt since they are expected to stay open indefinitely (kept alive by
// the 30s keepalive frame, spec §6.2).
func RequestTimeoutMiddleware(d time.Duration, exemptPrefixes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range exemptPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CompressionMiddleware gzip-encodes JSON responses when the client accepts
// it, skipping SSE and attachment downloads where framing/streaming
// matters more than size.
func CompressionMiddleware(exemptPrefixes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range exemptPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if !strings.Contains(strings.ToLower(r.Header.Get("Accept-Encoding")), "gzip") {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Del("Content-Length")
			gz := gzip.NewWriter(w)
			defer gz.Close()
			next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, writer: gz}, r)
		})
	}
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) { return w.writer.Write(b) }

// CORSMiddleware allows the configured origins (or "*" when none are
// configured) and handles preflight OPTIONS requests.
func CORSMiddleware(allowedOrigins []string) Middleware {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Log-Id, X-Idempotency-Key")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware enforces a simple fixed-window requests-per-minute
// cap per client IP, following the teacher's RateLimitMiddleware shape
// without its full sliding-window/token-bucket bookkeeping — a blunt
// per-minute counter is enough for this system's single-operator control
// plane.
func RateLimitMiddleware(perMinute int) Middleware {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	type window struct {
		count int
		reset time.Time
	}
	var mu sync.Mutex
	windows := make(map[string]*window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			mu.Lock()
			now := time.Now()
			win, ok := windows[ip]
			if !ok || now.After(win.reset) {
				win = &window{count: 0, reset: now.Add(time.Minute)}
				windows[ip] = win
			}
			win.count++
			over := win.count > perMinute
			retryAfter := int(time.Until(win.reset).Seconds())
			mu.Unlock()
			if over {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
