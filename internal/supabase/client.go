// Package supabase はマネージドバックエンド（Supabase）のREST APIクライアントを提供する。
// 認証（GoTrue）、テーブル操作（PostgREST）、オブジェクトストレージの3系統を扱う。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseSize はレスポンスボディの読み取り上限（1MB）。
const maxResponseSize = 1 << 20

// Client はSupabaseプロジェクトのAPIクライアント。
// すべてのリクエストにapikeyヘッダーを付与する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾スラッシュなしのプロジェクトURL（例: "https://xyz.supabase.co"）。
func NewClient(baseURL, anonKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
	}
}

// BaseURL はプロジェクトURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Error はSupabase APIが返したエラーレスポンスを表す。
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: status %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Message)
}

// AsError はerrからSupabaseのErrorを取り出す。
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// errorBody はGoTrue/PostgREST/Storageのエラーレスポンスの和集合。
// GoTrueのcodeは数値（HTTPステータス）の場合と文字列の場合がある。
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	StatusCode       string          `json:"statusCode"`
}

// parseError はエラーレスポンスボディからErrorを組み立てる。
func parseError(status int, body []byte) *Error {
	e := &Error{Status: status}

	var b errorBody
	if err := json.Unmarshal(body, &b); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	var codeStr string
	if len(b.Code) > 0 {
		_ = json.Unmarshal(b.Code, &codeStr)
	}

	switch {
	case b.ErrorCode != "":
		e.Code = b.ErrorCode
	case codeStr != "":
		e.Code = codeStr
	case b.Error != "" && b.ErrorDescription != "":
		e.Code = b.Error
	}

	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

type accessTokenKey struct{}

// ContextWithAccessToken はユーザーのアクセストークンをcontextに格納する。
// PostgRESTとStorageへのリクエストはこのトークンで行単位セキュリティが評価される。
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext はcontextに格納されたアクセストークンを返す。
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// request は1回のAPI呼び出しの内容。
type request struct {
	method      string
	path        string
	query       url.Values
	header      http.Header
	body        io.Reader
	contentType string
	bearer      string // 空の場合はcontextのトークン、それもなければanon key
}

// do はリクエストを実行し、2xxの場合はoutにJSONをデコードする。
// 2xx以外の場合は*Errorを返す。
func (c *Client) do(ctx context.Context, r request, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	bearer := r.bearer
	if bearer == "" {
		bearer = AccessTokenFromContext(ctx)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		ct := r.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Supabase APIの呼び出しに失敗しました",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("supabase request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseError(resp.StatusCode, body)
		c.logger.Warn("Supabase APIがエラーステータスを返しました",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// jsonBody は値をJSONエンコードしたリクエストボディを返す。
func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(b), nil
}
