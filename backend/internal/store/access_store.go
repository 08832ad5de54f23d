package store

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"syncServer/backend/internal/collab"
)

// AccessStore 实现 collab.AccessChecker：文档存在且调用者是 owner 或协作者才放行。
// 文档不存在与无权限统一返回 ErrNotFound，不向客户端区分两者。
type AccessStore struct {
	db                *gorm.DB
	table             string
	collaboratorTable string
	collaboratorFK    string
}

func NewDocumentAccessStore(db *gorm.DB) *AccessStore {
	return &AccessStore{
		db:                db,
		table:             "documents",
		collaboratorTable: "document_collaborators",
		collaboratorFK:    "document_id",
	}
}

func NewWhiteboardAccessStore(db *gorm.DB) *AccessStore {
	return &AccessStore{
		db:                db,
		table:             "whiteboards",
		collaboratorTable: "whiteboard_collaborators",
		collaboratorFK:    "whiteboard_id",
	}
}

var _ collab.AccessChecker = (*AccessStore)(nil)

func (s *AccessStore) Authorize(ctx context.Context, docID string, userID uint64) error {
	var ownerID uint64
	err := s.db.WithContext(ctx).Raw(
		`SELECT owner_id FROM `+s.table+` WHERE id = ?`, docID,
	).Row().Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return collab.ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID == userID {
		return nil
	}
	var count int64
	err = s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM `+s.collaboratorTable+` WHERE `+s.collaboratorFK+` = ? AND user_id = ?`,
		docID, userID,
	).Scan(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return collab.ErrNotFound
	}
	return nil
}
