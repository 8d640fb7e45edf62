// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/gakuseki/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
// 上位層でIdentityServiceError{email-in-use}にマッピングされる。
var ErrDuplicateEmail = errors.New("email already registered")

// Account はIDプロバイダが内部的に保持するアカウントレコード。
// PasswordHashを含むため公開モデル（model.Identity）とは分離している。
type Account struct {
	ID                string
	Email             string
	PasswordHash      string
	DisplayName       string
	CredentialVersion int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Identity はアカウントから公開用のIdentityを射影する。
func (a *Account) Identity() *model.Identity {
	return &model.Identity{
		ID:                a.ID,
		Email:             a.Email,
		DisplayName:       a.DisplayName,
		CredentialVersion: a.CredentialVersion,
		CreatedAt:         a.CreatedAt,
	}
}

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// Create はアカウントを作成する。
	// メールアドレスが既に使用されている場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *Account) error

	// UpdateDisplayName は表示名を更新する。
	UpdateDisplayName(ctx context.Context, id, displayName string) error

	// UpdatePassword はパスワードハッシュを更新し、credential_versionを
	// インクリメントする。更新後のバージョンを返す。
	UpdatePassword(ctx context.Context, id, passwordHash string) (int, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDの有効なセッションを取得する。
	// 期限切れ、またはパスワード変更により発行時のcredential_versionが
	// 現在のアカウントと一致しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByIdentityID は指定アカウントの全セッションを削除する。
	DeleteByIdentityID(ctx context.Context, identityID string) error
}
