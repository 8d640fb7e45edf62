// Package identity はIDサービスとの連携を提供する。
// Serviceインターフェースがアプリ本体の依存する能力面であり、
// LocalProviderがPostgreSQLを使ったその実装。
package identity

import (
	"context"

	"github.com/hitoshi/gakuseki/internal/model"
)

// ChangeFunc はID変更通知のコールバック。サインアウト時はnilが渡される。
type ChangeFunc func(*model.Identity)

// Service はIDサービスの能力面を表すインターフェース。
// 通知は購読開始時に必ず1回発火し、以後サインイン/サインアウトごとに発火する。
type Service interface {
	// SignUp はメールアドレスとパスワードでアカウントを作成し、サインイン状態にする。
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)

	// SignIn は資格情報を検証してサインイン状態にする。
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)

	// SignOut は現在のサインイン状態を解除する。
	SignOut(ctx context.Context) error

	// CurrentIdentity は現在サインインしているIdentityを返す。未サインインはnil。
	CurrentIdentity() *model.Identity

	// SubscribeToIdentityChanges はID変更通知を購読する。
	// 登録時に現在の状態で即座に1回コールバックし、解除用の関数を返す。
	SubscribeToIdentityChanges(fn ChangeFunc) (unsubscribe func())

	// UpdateDisplayName は指定アカウントの表示名を更新する。
	UpdateDisplayName(ctx context.Context, identityID, displayName string) error

	// UpdatePassword は指定アカウントのパスワードを更新する。
	// 直近のログインから時間が経過している場合は
	// IdentityServiceError{requires-recent-login}で失敗する。
	UpdatePassword(ctx context.Context, identityID, newPassword string) error
}
