package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/gakuseki/internal/model"
)

// MemoryStore はテストおよびローカル開発用のインメモリStore実装。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Fields // "collection/key" -> fields
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Fields)}
}

func memKey(collection, key string) string {
	return collection + "/" + key
}

// copyFields は呼び出し側とストアの間でマップを共有しないための浅いコピー。
func copyFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Get は指定キーのドキュメントを取得する。存在しない場合は(nil, nil)を返す。
func (s *MemoryStore) Get(_ context.Context, collection, key string) (Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.docs[memKey(collection, key)]
	if !ok {
		return nil, nil
	}
	return copyFields(fields), nil
}

// Set はドキュメントを作成または全体上書きする。
func (s *MemoryStore) Set(_ context.Context, collection, key string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[memKey(collection, key)] = copyFields(fields)
	return nil
}

// UpdatePartial は指定フィールドのみをマージ更新する。
// 対象ドキュメントが存在しない場合はエラーを返す。
func (s *MemoryStore) UpdatePartial(_ context.Context, collection, key string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[memKey(collection, key)]
	if !ok {
		return model.NewDocumentStoreError("update", collection, key,
			fmt.Errorf("document not found"))
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
