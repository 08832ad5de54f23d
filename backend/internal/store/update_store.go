package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"syncServer/backend/internal/collab"
)

// UpdateStore 实现 collab.Store：每文档严格递增的追加日志 + 快照表。
// 文档与白板各建一个实例，表名不同，行为完全一致。
//
// 发号策略：事务内先对该文档现有更新行加 FOR UPDATE 锁再取 MAX(seq)+1，
// 把发号串行化到数据库一侧；文档还没有任何更新行时锁不到东西，
// 两个进程可能同时算出 seq=1，此时靠 (document_id, seq) 唯一索引兜底，
// 撞到重复键就重算一次。快照表不删旧更新，只用于缩短回放。
type UpdateStore struct {
	db             *gorm.DB
	updatesTable   string
	snapshotsTable string
}

func NewDocUpdateStore(db *gorm.DB) *UpdateStore {
	return &UpdateStore{db: db, updatesTable: "doc_updates", snapshotsTable: "doc_snapshots"}
}

func NewBoardUpdateStore(db *gorm.DB) *UpdateStore {
	return &UpdateStore{db: db, updatesTable: "board_updates", snapshotsTable: "board_snapshots"}
}

var _ collab.Store = (*UpdateStore)(nil)

func (s *UpdateStore) GetLatestSnapshot(ctx context.Context, docID string) (*collab.SnapshotRecord, error) {
	var rec collab.SnapshotRecord
	res := s.db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT document_id, seq, payload, created_at FROM %s
			WHERE document_id = ? ORDER BY seq DESC LIMIT 1`, s.snapshotsTable),
		docID,
	).Scan(&rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (s *UpdateStore) GetUpdatesSince(ctx context.Context, docID string, since uint64) ([]collab.UpdateRecord, error) {
	var recs []collab.UpdateRecord
	err := s.db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT document_id, seq, payload, actor_id, created_at FROM %s
			WHERE document_id = ? AND seq > ? ORDER BY seq ASC`, s.updatesTable),
		docID, since,
	).Scan(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *UpdateStore) GetLatestSeq(ctx context.Context, docID string) (uint64, error) {
	var latest uint64
	err := s.db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT COALESCE(MAX(seq), 0) FROM %s WHERE document_id = ?`, s.updatesTable),
		docID,
	).Scan(&latest).Error
	return latest, err
}

func (s *UpdateStore) AppendUpdate(ctx context.Context, docID string, payload []byte, actorID uint64) (uint64, error) {
	var seq uint64
	var err error
	// 首条更新的发号竞争走唯一索引重试，最多一次
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var last uint64
			if err := tx.Raw(
				fmt.Sprintf(`SELECT COALESCE(MAX(seq), 0) FROM %s
					WHERE document_id = ? FOR UPDATE`, s.updatesTable),
				docID,
			).Scan(&last).Error; err != nil {
				return err
			}
			seq = last + 1
			return tx.Exec(
				fmt.Sprintf(`INSERT INTO %s (document_id, seq, payload, actor_id, created_at)
					VALUES (?, ?, ?, ?, ?)`, s.updatesTable),
				docID, seq, payload, actorID, time.Now(),
			).Error
		})
		if err == nil {
			return seq, nil
		}
		if !isDuplicateKey(err) {
			return 0, err
		}
	}
	return 0, err
}

func (s *UpdateStore) CreateSnapshot(ctx context.Context, docID string, payload []byte, seq uint64) (*collab.SnapshotRecord, error) {
	now := time.Now()
	err := s.db.WithContext(ctx).Exec(
		fmt.Sprintf(`INSERT INTO %s (document_id, seq, payload, created_at)
			VALUES (?, ?, ?, ?)`, s.snapshotsTable),
		docID, seq, payload, now,
	).Error
	if err != nil {
		// 同一 (docID, seq) 的快照已存在：别的客户端抢先压缩到同一点，不算失败
		if isDuplicateKey(err) {
			return &collab.SnapshotRecord{DocumentID: docID, Seq: seq, Payload: payload, CreatedAt: now}, nil
		}
		return nil, err
	}
	return &collab.SnapshotRecord{DocumentID: docID, Seq: seq, Payload: payload, CreatedAt: now}, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
