package store

import (
	"encoding/json"
	"time"
)

// 持久化模型。更新表按 (document_id, seq) 建唯一索引，
// 这个索引是发号正确性的最终权威：即使多个进程同时发号，重复的 seq 也无法落库。

type User struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"size:64;uniqueIndex;not null"`
	AvatarURL string `gorm:"size:255"`
	CreatedAt time.Time
}

type Document struct {
	ID        string `gorm:"primaryKey;size:64"`
	OwnerID   uint64 `gorm:"index;not null"`
	Title     string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DocumentCollaborator struct {
	DocumentID string `gorm:"primaryKey;size:64"`
	UserID     uint64 `gorm:"primaryKey"`
	CreatedAt  time.Time
}

// Whiteboard 的主状态（elements/files）在协作之外也会被直接加载，
// 所以收到白板快照时除快照表外还要刷新这里。
type Whiteboard struct {
	ID        string          `gorm:"primaryKey;size:64"`
	OwnerID   uint64          `gorm:"index;not null"`
	Title     string          `gorm:"size:255"`
	Elements  json.RawMessage `gorm:"type:json"`
	Files     json.RawMessage `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WhiteboardCollaborator struct {
	WhiteboardID string `gorm:"primaryKey;size:64"`
	UserID       uint64 `gorm:"primaryKey"`
	CreatedAt    time.Time
}

type DocUpdate struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:64;not null;uniqueIndex:uk_doc_updates_doc_seq,priority:1"`
	Seq        uint64 `gorm:"not null;uniqueIndex:uk_doc_updates_doc_seq,priority:2"`
	Payload    []byte `gorm:"type:mediumblob"`
	ActorID    uint64 `gorm:"index"`
	CreatedAt  time.Time
}

type DocSnapshot struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:64;not null;uniqueIndex:uk_doc_snapshots_doc_seq,priority:1"`
	Seq        uint64 `gorm:"not null;uniqueIndex:uk_doc_snapshots_doc_seq,priority:2"`
	Payload    []byte `gorm:"type:mediumblob"`
	CreatedAt  time.Time
}

type BoardUpdate struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:64;not null;uniqueIndex:uk_board_updates_doc_seq,priority:1"`
	Seq        uint64 `gorm:"not null;uniqueIndex:uk_board_updates_doc_seq,priority:2"`
	Payload    []byte `gorm:"type:mediumblob"`
	ActorID    uint64 `gorm:"index"`
	CreatedAt  time.Time
}

type BoardSnapshot struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:64;not null;uniqueIndex:uk_board_snapshots_doc_seq,priority:1"`
	Seq        uint64 `gorm:"not null;uniqueIndex:uk_board_snapshots_doc_seq,priority:2"`
	Payload    []byte `gorm:"type:mediumblob"`
	CreatedAt  time.Time
}
