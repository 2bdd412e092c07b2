// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// clientCookieName はブラウザクライアントを識別するCookieの名前。
// 値はサーバー側のセッションマネージャーのキーであり、認証情報は含まない。
const clientCookieName = "revculture_client"

// defaultClientCookieMaxAge はクライアントCookieの既定の有効期間（30日）。
const defaultClientCookieMaxAge = 30 * 24 * 60 * 60

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	clientIDContextKey    = contextKey("client_id")
	requestInfoContextKey = contextKey("request_info")
)

// ClientCookieConfig はクライアントCookieの設定。
type ClientCookieConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒。0の場合は30日
}

// requestInfo はハンドラーで判明した情報をログミドルウェアに渡すための可変の入れ物。
type requestInfo struct {
	clientID string
	userID   string
}

// NewClientMiddleware はクライアントCookieを読み取り、クライアントIDをコンテキストに注入するミドルウェアを返す。
// Cookieがない、またはUUIDとして不正な場合は新しいIDを発行してCookieに設定する。
func NewClientMiddleware(config ClientCookieConfig) func(next http.Handler) http.Handler {
	maxAge := config.MaxAge
	if maxAge == 0 {
		maxAge = defaultClientCookieMaxAge
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if cookie, err := r.Cookie(clientCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					clientID = id.String()
				}
			}

			if clientID == "" {
				clientID = uuid.NewString()
			}

			// 期限を延長するため毎回設定し直す
			http.SetCookie(w, &http.Cookie{
				Name:     clientCookieName,
				Value:    clientID,
				Path:     "/",
				Domain:   config.CookieDomain,
				MaxAge:   maxAge,
				HttpOnly: true,
				Secure:   config.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})

			if info, ok := r.Context().Value(requestInfoContextKey).(*requestInfo); ok {
				info.clientID = clientID
			}
			ctx := context.WithValue(r.Context(), clientIDContextKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIDFromContext はリクエストコンテキストからクライアントIDを取得する。
// クライアントミドルウェアを通過したリクエストでのみ有効。
func ClientIDFromContext(ctx context.Context) (string, error) {
	clientID, ok := ctx.Value(clientIDContextKey).(string)
	if !ok || clientID == "" {
		return "", fmt.Errorf("client ID not found in context")
	}
	return clientID, nil
}

// ContextWithClientID はコンテキストにクライアントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey, clientID)
}

// SetUserID は認証済みユーザーIDをリクエストログに記録する。
// ログミドルウェアを通過していないコンテキストでは何もしない。
func SetUserID(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = userID
	}
}
