// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はIDサービスが管理するアカウントを表す。
// IDは生成後不変。Emailはログインに使用され、編集フローでは読み取り専用として扱う。
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	// CredentialVersion はパスワード変更のたびにインクリメントされる。
	// 古いバージョンで発行されたセッションは無効になる。
	CredentialVersion int
	CreatedAt         time.Time
}

// Session はIDサービスが発行するログインセッションを表す。
// パスワード変更時のセッション失効判定のため、発行時点のCredentialVersionを保持する。
type Session struct {
	ID                string
	IdentityID        string
	CredentialVersion int
	ExpiresAt         time.Time
	CreatedAt         time.Time
}
