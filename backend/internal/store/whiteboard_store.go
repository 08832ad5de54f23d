package store

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"syncServer/backend/internal/collab"
)

// WhiteboardStore 维护白板的主状态（快照之外的那份）。
type WhiteboardStore struct{ db *gorm.DB }

func NewWhiteboardStore(db *gorm.DB) *WhiteboardStore {
	return &WhiteboardStore{db: db}
}

var _ collab.BoardStateStore = (*WhiteboardStore)(nil)

// SaveBoardState 用快照内容刷新白板主记录。
// state 是 {elements, files?} 形状的 JSON，这里只做结构拆分，不解读元素语义。
func (s *WhiteboardStore) SaveBoardState(ctx context.Context, boardID string, state []byte) error {
	var parsed struct {
		Elements json.RawMessage `json:"elements"`
		Files    json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(state, &parsed); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE whiteboards SET elements = ?, files = ?, updated_at = ? WHERE id = ?`,
		[]byte(parsed.Elements), []byte(parsed.Files), time.Now(), boardID,
	).Error
}
