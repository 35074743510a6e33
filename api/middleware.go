package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"foundry/config"
	"foundry/util/goroutine"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Recovery turns a panicking handler into a 500 response and logs the panic with its stack.
func Recovery(logger *zap.SugaredLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					requestID, _ := GetRequestID(r.Context())
					if logger != nil {
						logger.Errorw("Handler panic recovered",
							"request_id", requestID,
							"method", r.Method,
							"path", r.URL.Path,
							"panic", rec,
							"stack", goroutine.Stack())
					}
					WriteError(w, r, http.StatusInternalServerError, "internal server error", nil, nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS sets the CORS headers for allowed origins and answers preflight requests. A "*" entry
// allows any origin.
func CORS(cfg config.CORSConfig) mux.MiddlewareFunc {
	allowAll := false
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BasicAuth requires HTTP basic credentials matching one of the configured bcrypt hashes.
// Requests to the paths in skip are let through unauthenticated.
func BasicAuth(cfg config.BasicAuthConfig, logger *zap.SugaredLogger, skip ...string) mux.MiddlewareFunc {
	realm := cfg.Realm
	if realm == "" {
		realm = "foundry"
	}
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			username, password, ok := r.BasicAuth()
			hash, known := cfg.Users[username]
			if !ok || !known || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
				if logger != nil {
					logger.Warnw("Basic auth rejected",
						"username", username,
						"remote_addr", getRealIP(r, false))
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUsername, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit rejects requests over the limiter's budget with 429. Clients are keyed by IP.
func RateLimit(limiter *RateLimiter, trustProxy bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getRealIP(r, trustProxy)
			if !limiter.Allow(r.Context(), ip) {
				limiter.writeRateLimitResponse(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getRealIP returns the client IP. With trustProxy the first valid X-Forwarded-For entry wins.
func getRealIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ip := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
