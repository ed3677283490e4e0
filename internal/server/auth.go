// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sentra-dev/sentra/internal/policy"
	"github.com/sentra-dev/sentra/pkg/types"
)

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (types.Principal, bool)
}

// StaticVerifier resolves tokens from a fixed map. It backs local and
// test deployments; an external identity provider plugs in through the
// same interface.
type StaticVerifier struct {
	tokens map[string]types.Principal
}

// NewStaticVerifier builds a verifier over the given token map. Tokens
// resolving to unknown roles are dropped rather than deferred to a
// request-time failure.
func NewStaticVerifier(tokens map[string]types.Principal) *StaticVerifier {
	kept := make(map[string]types.Principal, len(tokens))
	for tok, p := range tokens {
		if tok == "" || p.ID == "" || !policy.Role(p.Role).Valid() {
			continue
		}
		kept[tok] = p
	}
	return &StaticVerifier{tokens: kept}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (types.Principal, bool) {
	p, ok := v.tokens[token]
	return p, ok
}

type principalKey struct{}

// PrincipalFrom returns the authenticated principal stored by the auth
// middleware, if any.
func PrincipalFrom(ctx context.Context) (types.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(types.Principal)
	return p, ok
}

// publicPath reports whether the path is served without authentication.
func publicPath(path string) bool {
	if path == "/health" || path == "/openapi.json" || path == "/openapi.yaml" {
		return true
	}
	return strings.HasPrefix(path, "/docs") || strings.HasPrefix(path, "/schemas")
}

// authMiddleware enforces bearer-token authentication on /api/* and
// stores the resolved principal in the request context.
func authMiddleware(verifier TokenVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			principal, ok := verifier.Verify(r.Context(), token)
			if !ok {
				log.Warn("rejected unknown token", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(`{"error":` + strconv.Quote(msg) + `}`)); err != nil {
		slog.Warn("failed to write error response", "error", err)
	}
}
