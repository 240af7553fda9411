package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/urukhq/whisperd/internal/infra/identity"
)

type contextKey string

const userContextKey contextKey = "user"

// TokenResolver は Bearer トークンをユーザー情報へ解決します。
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (json.RawMessage, error)
}

// Authenticator はすべての保護エンドポイントに掛かる認証ミドルウェアです。
// トークン検証はメインバックエンドへの委譲であり、検証済みのユーザー情報を
// リクエストコンテキストに載せます。
type Authenticator struct {
	resolver TokenResolver
	logger   *slog.Logger
}

// NewAuthenticator は新しい Authenticator を作成します。
func NewAuthenticator(resolver TokenResolver, logger *slog.Logger) *Authenticator {
	return &Authenticator{resolver: resolver, logger: logger}
}

// Middleware は chi に渡すミドルウェア関数を返します。
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		user, err := a.resolver.ResolveToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			a.logger.Error("token resolution failed", "error", err)
			writeError(w, http.StatusInternalServerError, "authentication backend unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext は認証済みユーザー情報を取り出します。
func userFromContext(ctx context.Context) json.RawMessage {
	if user, ok := ctx.Value(userContextKey).(json.RawMessage); ok {
		return user
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
