package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP routes. Settings updates require the admin key when one is set.
func NewRouter(h *Handler, adminAPIKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/quotes", func(r chi.Router) {
			r.Get("/search", h.SearchQuotes)
			r.Get("/resolve", h.ResolveQuote)
			r.Get("/popular/{chain}", h.PopularQuotes)
			r.Get("/latest", h.LatestQuotes)
		})

		r.Get("/settings", h.GetSettings)
		r.Group(func(r chi.Router) {
			if adminAPIKey != "" {
				r.Use(func(next http.Handler) http.Handler { return requireAuth(adminAPIKey, next) })
			}
			r.Put("/settings", h.UpdateSettings)
		})

		r.Route("/portfolios/{user}", func(r chi.Router) {
			r.Get("/", h.GetPortfolio)
			r.Delete("/session", h.ClosePortfolio)
			r.Post("/holdings", h.AddHolding)
			r.Patch("/holdings/{id}", h.SetQuantity)
			r.Delete("/holdings/{id}", h.RemoveHolding)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/snapshots", h.ListSnapshots)
			r.Get("/snapshots/latest", h.GetLatestSnapshot)
			r.Get("/export.xlsx", h.ExportXLSX)
		})
	})

	return r
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, h *Handler, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(h, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
