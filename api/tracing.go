package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an ID, echoes it in the response and logs the request once it
// completes.
//
// Behavior:
//   - an incoming X-Request-ID header is reused after sanitizing
//   - otherwise a new UUID is generated
//   - the ID and the start time are stored in the request context
func RequestID(logger *zap.SugaredLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := sanitizeRequestID(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := WithRequestID(r.Context(), requestID)
			ctx = WithTraceStart(ctx, start)

			wrapped := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if logger != nil {
				duration := time.Since(start)
				logger.Infow("request_completed",
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.statusCode,
					"duration_ms", duration.Milliseconds(),
				)
			}
		})
	}
}

// LogWithRequestID returns logger with the request ID from r attached.
func LogWithRequestID(r *http.Request, logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return nil
	}
	requestID, ok := GetRequestID(r.Context())
	if !ok {
		requestID = "unknown"
	}
	return logger.With("request_id", requestID)
}

// sanitizeRequestID keeps alphanumerics, dashes and underscores and truncates to 64 characters
// so client-supplied IDs cannot inject into logs.
func sanitizeRequestID(id string) string {
	const maxLen = 64

	if len(id) > maxLen {
		id = id[:maxLen]
	}
	result := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '-' || c == '_' {
			result = append(result, c)
		}
	}
	return string(result)
}
