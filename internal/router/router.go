package router

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shardrop/airdrop-registry/internal/admin"
	"github.com/shardrop/airdrop-registry/internal/airdrop"
	"github.com/shardrop/airdrop-registry/internal/geoip"
	"github.com/shardrop/airdrop-registry/internal/ratelimit"
	"github.com/shardrop/airdrop-registry/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware tags each request with a generated ID and logs it at
// debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := utilities.NewRequestID()
			w.Header().Set("X-Request-Id", requestID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"requestId", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", geoip.ClientIP(r),
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. It is
// intentionally simple and conservative so it works with most setups.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware allows the configured frontend origin. An empty origin
// allows any, which is only sensible in development.
func CORSMiddleware(frontendURL string) func(http.Handler) http.Handler {
	origin := strings.TrimRight(frontendURL, "/")
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-admin-key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Config carries the router's wiring knobs.
type Config struct {
	FrontendURL        string
	StaticDir          string
	GeneralLimiter     *ratelimit.Limiter
	EligibilityLimiter *ratelimit.Limiter
}

// RegisterRoutes mounts all HTTP handlers on a standard library ServeMux and
// wraps the result in the middleware chain.
func RegisterRoutes(ah *airdrop.Handler, adm *admin.Handler, cfg Config, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", ah.Health)

	eligibilityLimit := cfg.EligibilityLimiter.Middleware(geoip.ClientIP,
		"Too many eligibility checks, please try again later", logger)
	mux.Handle("POST /api/check-eligibility", eligibilityLimit(http.HandlerFunc(ah.CheckEligibility)))
	mux.HandleFunc("POST /api/claim", ah.Claim)
	mux.HandleFunc("GET /api/claim-status/{address}", ah.ClaimStatus)
	mux.HandleFunc("GET /api/stats", ah.Stats)
	mux.HandleFunc("GET /api/recent-claims", ah.RecentClaims)

	mux.Handle("GET /api/admin/dashboard", adm.Auth(http.HandlerFunc(adm.Dashboard)))
	mux.Handle("GET /api/admin/users", adm.Auth(http.HandlerFunc(adm.Users)))
	mux.Handle("GET /api/admin/export", adm.Auth(http.HandlerFunc(adm.Export)))

	// unknown API routes get a JSON 404 instead of the mux's plain text
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Not found"})
	})

	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	generalLimit := cfg.GeneralLimiter.Middleware(geoip.ClientIP,
		"Too many requests, please try again later", logger)
	handler := generalLimit(SecurityHeadersMiddleware()(mux))
	handler = CORSMiddleware(cfg.FrontendURL)(handler)
	handler = LoggingMiddleware(logger)(handler)
	return handler
}
