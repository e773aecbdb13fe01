package routing

import (
	"net/http"

	"bulletin/internal/events"
	"bulletin/internal/handlers"
	"bulletin/internal/metrics"
	"bulletin/internal/middleware"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers  *handlers.Handler
	Hub       *events.Hub
	Logger    zerolog.Logger
	RateLimit *middleware.RateLimitConfig // nil uses the defaults
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Browsers may only write from the same origin; API clients without
	// Sec-Fetch-Site or Origin headers pass through.
	cop := http.NewCrossOriginProtection()
	write := func(fn http.HandlerFunc) http.Handler {
		return cop.Handler(fn)
	}

	// Read surface
	mux.HandleFunc("GET /api/records/{id}", h.HandleRecordGet)
	mux.HandleFunc("GET /api/records/{id}/replies", h.HandleReplies)
	mux.HandleFunc("GET /api/records/{id}/original", h.HandleOriginal)
	mux.HandleFunc("GET /api/latest", h.HandleLatest)
	mux.HandleFunc("GET /api/feed", h.HandleFeed)
	mux.HandleFunc("GET /api/authors/{identity}/records", h.HandleAuthorRecords)
	mux.HandleFunc("GET /api/buckets/{bucket}/records", h.HandleBucketRecords)
	mux.HandleFunc("GET /api/handles/{handle}", h.HandleHandleLookup)
	mux.HandleFunc("GET /api/profiles/{identity}", h.HandleProfileGet)
	mux.HandleFunc("GET /api/stats", h.HandleStats)

	// Writes
	mux.Handle("POST /api/records", write(h.HandleRecordCreate))
	mux.Handle("DELETE /api/records/{id}", write(h.HandleRecordDelete))
	mux.Handle("PUT /api/profile", write(h.HandleProfileClaim))
	mux.Handle("PUT /api/profile/avatar", write(h.HandleAvatarUpdate))
	mux.Handle("DELETE /api/profile", write(h.HandleProfileDeactivate))

	// Administrative surface
	mux.HandleFunc("GET /api/admin/settings", h.HandleSettingsGet)
	mux.HandleFunc("GET /api/admin/stats", h.HandleAdminStats)
	mux.Handle("PUT /api/admin/settings/{name}", write(h.HandleSettingUpdate))

	// Change notifications
	mux.Handle("GET /api/events", cfg.Hub)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Apply middleware in order (outermost first, innermost last)
	var handler http.Handler = mux

	// 1. Limit request body size (innermost - runs first on request)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. Apply rate limiting
	rateLimitConfig := cfg.RateLimit
	if rateLimitConfig == nil {
		rateLimitConfig = middleware.NewDefaultRateLimitConfig()
	}
	handler = middleware.RateLimitMiddleware(rateLimitConfig)(handler)

	// 3. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 4. Apply logging middleware
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	// 5. Trace every request (outermost)
	handler = otelhttp.NewHandler(handler, "bulletin",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + metrics.NormalizePath(r.URL.Path)
		}),
	)

	return handler
}
