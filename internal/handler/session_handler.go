package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/revculture/internal/middleware"
	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/session"
)

// WebSocketの送受信設定
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// resolveSession はリクエストのクライアントIDに対応するSessionManagerを取得する。
// 取得できない場合はエラーレスポンスを書き込んでfalseを返す。
func resolveSession(w http.ResponseWriter, r *http.Request, sessions SessionProvider) (SessionManager, bool) {
	clientID, err := middleware.ClientIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("missing client identifier"))
		return nil, false
	}

	m, err := sessions.Session(r.Context(), clientID)
	if err != nil {
		slog.Error("セッションマネージャーの取得に失敗しました",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return nil, false
	}

	if userID := m.UserID(); userID != "" {
		middleware.SetUserID(r.Context(), userID)
	}
	return m, true
}

// SessionHandler はセッション状態の参照と通知のHTTPハンドラー。
type SessionHandler struct {
	sessions   SessionProvider
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	pingPeriod time.Duration
}

// NewSessionHandler はSessionHandlerを生成する。
// allowedOriginはWebSocketハンドシェイクで許可するOriginで、CORSの許可オリジンと同じ値を渡す。
func NewSessionHandler(sessions SessionProvider, allowedOrigin string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		logger:     logger,
		pingPeriod: wsPingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// GetSession は現在のセッション状態を返す。
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := resolveSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// ClearError は表示中のエラー通知を消す。
// DELETE /api/session/error
func (h *SessionHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	m, ok := resolveSession(w, r, h.sessions)
	if !ok {
		return
	}
	m.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

// Events はセッション状態の変化をWebSocketで配信する。
// Watchの仕様により接続直後に現在の状態が届き、以降は変化のたびに最新の状態を送る。
// ping送信のたびにクライアントの最終アクセス時刻を更新する。
// GET /api/session/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	m, ok := resolveSession(w, r, h.sessions)
	if !ok {
		return
	}
	clientID, _ := middleware.ClientIDFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		h.logger.Warn("WebSocketのアップグレードに失敗しました", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 読み取りループはpongの処理と切断検知のみ行う
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates := m.Watch(ctx)
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				// マネージャーが閉じられた
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := writeState(conn, st); err != nil {
				return
			}
		case <-ticker.C:
			h.sessions.Touch(clientID)
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeState(conn *websocket.Conn, st session.State) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(st)
}
