package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	goRotate "github.com/MrEthical07/goRotate"
)

// Engine is the subset of *goRotate.Engine the handlers call.
type Engine interface {
	Refresh(ctx context.Context, accessToken, refreshToken string) (*goRotate.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Options configures a Handler.
type Options struct {
	Cookie CookieOptions
	// RetryAfter is advertised on 409 responses. Defaults to one second.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

// Handler serves POST /auth/refresh and POST /auth/logout.
type Handler struct {
	engine Engine
	opts   Options
	logger *slog.Logger
}

func NewHandler(engine Engine, opts Options) *Handler {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, opts: opts, logger: logger}
}

// Routes registers both endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	return mux
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Refresh rotates the presented pair and returns the new one in the body
// and the refresh cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	access, ok := BearerToken(r)
	refresh := RefreshToken(r, h.opts.Cookie)
	if !ok || refresh == "" {
		h.writeError(w, r, goRotate.ErrMalformedRequest)
		return
	}

	ctx := goRotate.WithClientIP(r.Context(), ClientIP(r))
	pair, err := h.engine.Refresh(ctx, access, refresh)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	SetRefreshCookie(w, h.opts.Cookie, pair.RefreshToken, pair.RefreshExpiresAt)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout revokes the presented refresh token and clears the cookie. A
// missing or already revoked token still succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	refresh := RefreshToken(r, h.opts.Cookie)
	if refresh != "" {
		ctx := goRotate.WithClientIP(r.Context(), ClientIP(r))
		if err := h.engine.Logout(ctx, refresh); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	ClearRefreshCookie(w, h.opts.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.LogAttrs(r.Context(), slog.LevelError, "auth request failed",
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
	}
	if status == http.StatusConflict {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.opts.RetryAfter.Round(time.Second)/time.Second)))
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    ErrorCode(err),
		Message: errorMessage(err),
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
