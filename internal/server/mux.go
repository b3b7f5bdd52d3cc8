// Package server assembles the gorotate-server HTTP surface and its
// background sweeper.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/httpapi"
	"github.com/MrEthical07/goRotate/middleware"
)

// Engine is the engine surface the server needs.
type Engine interface {
	httpapi.Engine
	middleware.Refresher
	SweepExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Engine Engine
	Cookie httpapi.CookieOptions
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Issuer and IssuerKey mount POST /auth/session for a trusted login
	// service. Both must be set.
	Issuer    httpapi.Issuer
	IssuerKey string
	Logger    *slog.Logger
}

// NewMux builds the mux with the refresh and logout endpoints, an
// authenticated /auth/me, a health check, and the optional session issue
// and metrics endpoints.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()

	opts := httpapi.Options{Cookie: cfg.Cookie, Logger: cfg.Logger}
	auth := httpapi.NewHandler(cfg.Engine, opts)
	mux.HandleFunc("POST /auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /auth/logout", auth.Logout)
	if cfg.Issuer != nil && cfg.IssuerKey != "" {
		mux.Handle("POST /auth/session", httpapi.NewIssueHandler(cfg.Issuer, cfg.IssuerKey, opts))
	}

	guard := middleware.AutoRefresh(cfg.Engine, cfg.Cookie)
	mux.Handle("GET /auth/me", guard(middleware.RequireClaims(http.HandlerFunc(handleMe))))

	mux.HandleFunc("GET /healthz", handleHealth(cfg.Engine))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	return mux
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"owner":     claims.Owner(),
		"expiresAt": claims.Expiry().UTC().Format(time.RFC3339),
	})
}

func handleHealth(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := engine.Ping(ctx); err != nil {
			http.Error(w, goRotate.ErrStoreUnavailable.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
