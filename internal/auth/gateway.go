// Package auth はマネージドバックエンドの認証APIを抽象化するゲートウェイを提供する。
// プロバイダー固有のエラーは境界でmodel.AuthErrorの閉じた分類に変換する。
package auth

import (
	"context"

	"github.com/hitoshi/revculture/internal/model"
)

// Listener は認証状態の変化を受け取るコールバック。
// サインアウト時などセッションがない場合、sessionはnil。
type Listener func(event model.AuthEvent, session *model.Session)

// Gateway は認証プロバイダーとのやり取りを表すインターフェース。
// 返すエラーは*model.AuthErrorか、それを取り出せないインフラ由来のエラー。
type Gateway interface {
	// SignUp はユーザーを登録する。メール確認が必要な場合、セッションはnil。
	SignUp(ctx context.Context, email, password, username string) (*model.Identity, *model.Session, error)

	// SignIn はメールアドレスとパスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*model.Session, error)

	// SignOut は現在のセッションを失効させる。
	SignOut(ctx context.Context) error

	// CurrentSession は保存済みのセッションを返す。セッションがない場合はnil。
	CurrentSession(ctx context.Context) (*model.Session, error)

	// Subscribe は認証状態の変化を購読し、購読解除関数を返す。
	Subscribe(listener Listener) (unsubscribe func())

	// Authorize は現在のセッションの資格情報を付与したcontextを返す。
	// プロフィール操作を本人の権限で行うために使用する。
	Authorize(ctx context.Context) context.Context
}
