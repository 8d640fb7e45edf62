package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/gakuseki/internal/model"
)

// PostgresStore はPostgreSQLのJSONBカラムにドキュメントを保持するStore実装。
// (collection, key)ごとに1行を持つ。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get は指定キーのドキュメントを取得する。存在しない場合は(nil, nil)を返す。
func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Fields, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewDocumentStoreError("get", collection, key, err)
	}

	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, model.NewDocumentStoreError("get", collection, key,
			fmt.Errorf("failed to decode document: %w", err))
	}
	return fields, nil
}

// Set はドキュメントを作成または全体上書きする。
func (s *PostgresStore) Set(ctx context.Context, collection, key string, fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return model.NewDocumentStoreError("set", collection, key,
			fmt.Errorf("failed to encode document: %w", err))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, key, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, key, data,
	)
	if err != nil {
		return model.NewDocumentStoreError("set", collection, key, err)
	}
	return nil
}

// UpdatePartial は指定フィールドのみをJSONBマージで更新する。
// 対象ドキュメントが存在しない場合はエラーを返す（Firestoreのupdateと同じ挙動）。
func (s *PostgresStore) UpdatePartial(ctx context.Context, collection, key string, fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return model.NewDocumentStoreError("update", collection, key,
			fmt.Errorf("failed to encode fields: %w", err))
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND key = $2`,
		collection, key, data,
	)
	if err != nil {
		return model.NewDocumentStoreError("update", collection, key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return model.NewDocumentStoreError("update", collection, key, err)
	}
	if affected == 0 {
		return model.NewDocumentStoreError("update", collection, key,
			fmt.Errorf("document not found"))
	}
	return nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
