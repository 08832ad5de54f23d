package collab

import (
	"context"
	"errors"
	"time"
)

// 文档类型：富文本文档 / 白板。两类各有独立的更新日志与快照表，契约形状相同。
const (
	DocTypeDocument   = "document"
	DocTypeWhiteboard = "whiteboard"
)

// UpdateRecord 是文档追加日志中的一条增量更新。
// Seq 由存储层在落库时分配（数据库内串行发号），引擎和客户端都不参与计算，
// 它是同一文档内更新全序的唯一依据。Payload 对引擎完全不透明。
type UpdateRecord struct {
	DocumentID string    `json:"documentId"`
	Seq        uint64    `json:"seq"`
	Payload    []byte    `json:"payload"`
	ActorID    uint64    `json:"actorId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SnapshotRecord 是某一时刻的全量压缩状态，Seq 表示已折叠进来的最高更新序号。
// 快照只用来缩短回放，不触发旧更新的删除。
type SnapshotRecord struct {
	DocumentID string    `json:"documentId"`
	Seq        uint64    `json:"seq"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserInfo 用于在线协作者展示（白板同步帧、presence 广播）。
type UserInfo struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Store 是更新/快照存储契约。文档与白板各持有一个实例。
// 实现方自己保证并发安全；尤其是 AppendUpdate 的发号必须在存储层原子完成，
// 多个引擎进程共用同一库时也不允许重复。
type Store interface {
	// GetLatestSnapshot 返回 seq 最高的快照；从未压缩过时返回 (nil, nil)。
	GetLatestSnapshot(ctx context.Context, docID string) (*SnapshotRecord, error)
	// GetUpdatesSince 返回 seq 严格大于 since 的全部更新，按 seq 升序。
	// since=0 表示从头回放。
	GetUpdatesSince(ctx context.Context, docID string, since uint64) ([]UpdateRecord, error)
	// GetLatestSeq 返回该文档已分配过的最高 seq，没有任何更新时返回 0。
	GetLatestSeq(ctx context.Context, docID string) (uint64, error)
	// AppendUpdate 持久化一条更新并返回新分配的 seq。
	AppendUpdate(ctx context.Context, docID string, payload []byte, actorID uint64) (uint64, error)
	// CreateSnapshot 持久化一条快照记录。
	CreateSnapshot(ctx context.Context, docID string, payload []byte, seq uint64) (*SnapshotRecord, error)
}

// AccessChecker 解析目标文档并校验身份可访问。文档不存在或无权限返回 ErrNotFound，
// 其余错误视为基础设施故障，由连接层防御性关闭。
type AccessChecker interface {
	Authorize(ctx context.Context, docID string, userID uint64) error
}

// UserDirectory 按 ID 查询协作者展示信息。
type UserDirectory interface {
	LookupUser(ctx context.Context, userID uint64) (UserInfo, error)
}

// BoardStateStore 在白板收到快照时刷新白板的主存储状态，
// 保证不开协作直接打开时也能看到最近一次压缩后的内容。
type BoardStateStore interface {
	SaveBoardState(ctx context.Context, boardID string, state []byte) error
}

var (
	// ErrNotFound 文档不存在，或调用者对它没有访问权限。
	ErrNotFound = errors.New("DOCUMENT_NOT_FOUND")
)
