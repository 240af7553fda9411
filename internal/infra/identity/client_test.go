package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ResolveToken(t *testing.T) {
	t.Run("有効なトークンでユーザー情報が返る", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/admin/user/me", r.URL.Path)
			assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": 42, "email": "user@example.com"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL)
		user, err := c.ResolveToken(t.Context(), "token-123")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id": 42, "email": "user@example.com"}`, string(user))
	})

	t.Run("拒否されたトークンは ErrUnauthorized になる", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(srv.URL)
		_, err := c.ResolveToken(t.Context(), "bad-token")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("到達できないバックエンドは ErrUnavailable になる", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		c := NewClient(srv.URL)
		_, err := c.ResolveToken(t.Context(), "token")
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("JSON でないレスポンスは ErrUnavailable になる", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>gateway error</html>"))
		}))
		defer srv.Close()

		c := NewClient(srv.URL)
		_, err := c.ResolveToken(t.Context(), "token")
		require.ErrorIs(t, err, ErrUnavailable)
	})
}
