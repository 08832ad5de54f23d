package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"syncServer/backend/internal/collab"
)

type UserStore struct{ db *gorm.DB }

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

var _ collab.UserDirectory = (*UserStore)(nil)

func (s *UserStore) LookupUser(ctx context.Context, userID uint64) (collab.UserInfo, error) {
	var u User
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, username, COALESCE(avatar_url, '') FROM users WHERE id = ?`, userID,
	).Row().Scan(&u.ID, &u.Username, &u.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		// 身份来自已验证的令牌，库里查不到时退化为占位名而不是拒绝连接
		return collab.UserInfo{ID: userID, Name: fmt.Sprintf("user-%d", userID)}, nil
	}
	if err != nil {
		return collab.UserInfo{}, err
	}
	return collab.UserInfo{ID: u.ID, Name: u.Username, AvatarURL: u.AvatarURL}, nil
}
