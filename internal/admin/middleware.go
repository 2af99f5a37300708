package admin

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

// requestLogger logs every admin request with its status and latency.
func requestLogger(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
		}
		entry := log.WithContext(r.Context())
		switch {
		case ww.status >= 500:
			entry.Error("admin request", fields...)
		case ww.status >= 400:
			entry.Warn("admin request", fields...)
		default:
			entry.Info("admin request", fields...)
		}
	})
}

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// requestID reuses the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// limit rejects requests beyond the limiter budget with 429.
func limit(l *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireKey accepts X-Admin-Key or the legacy X-API-Key header.
func requireKey(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(HeaderAdminKey)
		if got == "" {
			got = r.Header.Get(HeaderAPIKey)
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
