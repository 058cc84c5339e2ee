package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiranshivaraju/lesionscan/internal/analysis"
	mw "github.com/kiranshivaraju/lesionscan/internal/api/middleware"
	"github.com/kiranshivaraju/lesionscan/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit   *mw.RateLimit
	Debug       bool
	CORSOrigins []string
	// UploadDir is served read-only under /uploads/ when set.
	UploadDir string
	Metrics   http.Handler

	HealthHandler  http.HandlerFunc
	AnalyzeHandler http.HandlerFunc
	StatusHandler  http.HandlerFunc
	ResultsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery(deps.Debug))
	r.Use(chimw.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(chimw.SetHeader("X-Frame-Options", "DENY"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found - "+r.URL.Path, nil, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil, "")
	})

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", noDirListing(http.FileServer(http.Dir(deps.UploadDir)))))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/analyze", orNotImplemented(deps.AnalyzeHandler))

		r.Get("/status/{jobID}", orNotImplemented(deps.StatusHandler))
		r.Get("/results/{jobID}", orNotImplemented(deps.ResultsHandler))

		// A missing id is a bad request rather than an unknown route.
		for _, p := range []string{"/status", "/status/", "/results", "/results/"} {
			r.Get(p, missingJobID(deps.Debug))
		}
	})

	return r
}

func missingJobID(debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := analysis.ParseJobID("")
		response.FromError(w, r, err, debug)
	}
}

// noDirListing hides directory indexes produced by http.FileServer.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			response.Error(w, http.StatusNotFound, "Not Found - "+r.URL.Path, nil, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented", nil, "")
	}
}
