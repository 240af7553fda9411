package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnauthorized はトークンが認証バックエンドに拒否された場合のエラー
	ErrUnauthorized = errors.New("token rejected by identity backend")

	// ErrUnavailable は認証バックエンドに到達できない場合のエラー
	ErrUnavailable = errors.New("identity backend unavailable")
)

// Client はメインバックエンドへトークン検証を委譲するクライアントです。
// このサービス自身はユーザーを管理せず、Bearer トークンをそのまま転送して
// ユーザー情報を取得します。
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient は新しい Client を作成します。
func NewClient(baseURL string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// ResolveToken はトークンを検証し、バックエンドが返したユーザー情報を
// そのまま返します。中身の形には関知しません。
func (c *Client) ResolveToken(ctx context.Context, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/user/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid user payload", ErrUnavailable)
	}
	return json.RawMessage(body), nil
}
