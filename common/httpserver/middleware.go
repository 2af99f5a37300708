package httpserver

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// RecoverMiddleware turns handler panics into 500 responses.
func RecoverMiddleware(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rcv := recover(); rcv != nil {
					log.Error("http: panic recovered",
						zap.Any("panic", rcv),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
