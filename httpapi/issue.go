package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	goRotate "github.com/MrEthical07/goRotate"
)

// IssuerKeyHeader carries the key shared with the trusted login service.
const IssuerKeyHeader = "X-Issuer-Key"

const maxIssueBody = 4 << 10

// Issuer mints the first pair for an owner authenticated elsewhere.
type Issuer interface {
	Issue(ctx context.Context, owner string) (*goRotate.TokenPair, error)
}

// IssueHandler serves POST /auth/session for a login service that has
// already checked the user's credentials. Only callers presenting the
// shared issuer key may mint sessions; an empty key disables the endpoint.
type IssueHandler struct {
	issuer Issuer
	key    []byte
	h      *Handler
}

func NewIssueHandler(issuer Issuer, key string, opts Options) *IssueHandler {
	return &IssueHandler{
		issuer: issuer,
		key:    []byte(key),
		h:      NewHandler(nil, opts),
	}
}

type issueRequest struct {
	Owner string `json:"owner"`
}

func (ih *IssueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	presented := []byte(r.Header.Get(IssuerKeyHeader))
	if len(ih.key) == 0 || subtle.ConstantTimeCompare(presented, ih.key) != 1 {
		ih.h.logger.LogAttrs(r.Context(), slog.LevelWarn, "issue rejected",
			slog.String("ip", ClientIP(r)),
		)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code:    "invalid_issuer_key",
			Message: "invalid issuer key",
		}})
		return
	}

	var req issueRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIssueBody)).Decode(&req)
	owner := strings.TrimSpace(req.Owner)
	if err != nil || owner == "" {
		ih.h.writeError(w, r, goRotate.ErrMalformedRequest)
		return
	}

	ctx := goRotate.WithClientIP(r.Context(), ClientIP(r))
	pair, err := ih.issuer.Issue(ctx, owner)
	if err != nil {
		ih.h.writeError(w, r, err)
		return
	}

	SetRefreshCookie(w, ih.h.opts.Cookie, pair.RefreshToken, pair.RefreshExpiresAt)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}
