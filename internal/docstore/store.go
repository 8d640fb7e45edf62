// Package docstore はコレクションとキーで引くドキュメントストアの抽象を定義する。
// プロフィールレコードの永続化はすべてこのインターフェース経由で行う。
package docstore

import "context"

// Fields はドキュメントのフィールド集合を表す。
type Fields map[string]any

// Store はドキュメントストアのインターフェース。
// ドキュメントが存在しないことはエラーではなく、Getは(nil, nil)を返す。
// 読み書きの失敗はmodel.DocumentStoreErrorとして返す。
type Store interface {
	// Get は指定キーのドキュメントを取得する。存在しない場合は(nil, nil)を返す。
	Get(ctx context.Context, collection, key string) (Fields, error)

	// Set はドキュメントを作成または全体上書きする。
	Set(ctx context.Context, collection, key string, fields Fields) error

	// UpdatePartial は指定フィールドのみをマージ更新する。
	// 対象ドキュメントが存在しない場合はエラーを返す。
	UpdatePartial(ctx context.Context, collection, key string, fields Fields) error
}
