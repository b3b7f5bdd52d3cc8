package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	goRotate "github.com/MrEthical07/goRotate"
)

const testIssuerKey = "issuer-key-0123456789abcdef-0123"

type fakeIssuer struct {
	pair   *goRotate.TokenPair
	err    error
	owners []string
}

func (f *fakeIssuer) Issue(_ context.Context, owner string) (*goRotate.TokenPair, error) {
	f.owners = append(f.owners, owner)
	if f.err != nil {
		return nil, f.err
	}
	return f.pair, nil
}

func sessionRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IssuerKeyHeader, key)
	}
	return req
}

func TestIssue_Success(t *testing.T) {
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	fake := &fakeIssuer{pair: &goRotate.TokenPair{AccessToken: "A1", RefreshToken: "R1", RefreshExpiresAt: exp}}
	h := NewIssueHandler(fake, testIssuerKey, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, sessionRequest(testIssuerKey, `{"owner":" user-1 "}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"user-1"}, fake.owners)
	assert.Equal(t, "A1", gjson.Get(rec.Body.String(), "accessToken").String())
	assert.Equal(t, "R1", gjson.Get(rec.Body.String(), "refreshToken").String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, RefreshTokenCookie, cookies[0].Name)
	assert.Equal(t, "R1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestIssue_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing key", testIssuerKey, "", `{"owner":"user-1"}`, http.StatusUnauthorized, "invalid_issuer_key"},
		{"wrong key", testIssuerKey, "not-the-key", `{"owner":"user-1"}`, http.StatusUnauthorized, "invalid_issuer_key"},
		{"no key configured", "", "", `{"owner":"user-1"}`, http.StatusUnauthorized, "invalid_issuer_key"},
		{"empty owner", testIssuerKey, testIssuerKey, `{"owner":"  "}`, http.StatusForbidden, "malformed_request"},
		{"bad json", testIssuerKey, testIssuerKey, `{"owner":`, http.StatusForbidden, "malformed_request"},
		{"oversized body", testIssuerKey, testIssuerKey, `{"owner":"` + strings.Repeat("x", 8<<10) + `"}`, http.StatusForbidden, "malformed_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeIssuer{pair: &goRotate.TokenPair{AccessToken: "A1", RefreshToken: "R1"}}
			h := NewIssueHandler(fake, tt.configured, Options{})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, sessionRequest(tt.presented, tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, gjson.Get(rec.Body.String(), "error.code").String())
			assert.Empty(t, fake.owners)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestIssue_EngineFailure(t *testing.T) {
	fake := &fakeIssuer{err: errors.New("store down")}
	h := NewIssueHandler(fake, testIssuerKey, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, sessionRequest(testIssuerKey, `{"owner":"user-1"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}
