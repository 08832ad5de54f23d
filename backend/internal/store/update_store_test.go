package store

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 集成测试：需要本地 MySQL。没有就跳过（与 redis 侧的测试约定一致）。
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(127.0.0.1:3306)/syncserver_test?charset=utf8mb4&parseTime=True&loc=Local"
	}
	db, err := InitMySQL(dsn)
	if err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB.Ping() != nil {
		t.Skipf("skip: mysql not reachable")
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUpdateStore_AppendAssignsContiguousSeq(t *testing.T) {
	db := testDB(t)
	s := NewDocUpdateStore(db)
	ctx := context.Background()
	docID := "doc-" + uuid.NewString()

	for i := 1; i <= 5; i++ {
		seq, err := s.AppendUpdate(ctx, docID, []byte{byte(i)}, 1)
		if err != nil {
			t.Fatalf("AppendUpdate #%d: %v", i, err)
		}
		if seq != uint64(i) {
			t.Fatalf("AppendUpdate #%d = seq %d, want %d", i, seq, i)
		}
	}
	latest, err := s.GetLatestSeq(ctx, docID)
	if err != nil || latest != 5 {
		t.Fatalf("GetLatestSeq = (%d, %v), want 5", latest, err)
	}
}

// 同文档并发追加：拿到的 seq 必须是 1..N 的一个排列，无重复。
func TestUpdateStore_ConcurrentAppendsAreUnique(t *testing.T) {
	db := testDB(t)
	s := NewDocUpdateStore(db)
	ctx := context.Background()
	docID := "doc-" + uuid.NewString()

	const workers = 8
	const perWorker = 10
	seqs := make(chan uint64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(actor uint64) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				seq, err := s.AppendUpdate(ctx, docID, []byte("x"), actor)
				if err != nil {
					t.Errorf("AppendUpdate: %v", err)
					return
				}
				seqs <- seq
			}
		}(uint64(w + 1))
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool)
	for seq := range seqs {
		if seen[seq] {
			t.Fatalf("duplicate seq %d assigned", seq)
		}
		seen[seq] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("got %d distinct seqs, want %d", len(seen), workers*perWorker)
	}
	for i := uint64(1); i <= workers*perWorker; i++ {
		if !seen[i] {
			t.Fatalf("seq %d missing: assignment must be contiguous from 1", i)
		}
	}
}

func TestUpdateStore_ReplayFromSnapshot(t *testing.T) {
	db := testDB(t)
	s := NewBoardUpdateStore(db)
	ctx := context.Background()
	docID := "board-" + uuid.NewString()

	payloads := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	for _, p := range payloads {
		if _, err := s.AppendUpdate(ctx, docID, p, 1); err != nil {
			t.Fatalf("AppendUpdate: %v", err)
		}
	}
	if _, err := s.CreateSnapshot(ctx, docID, []byte("state@2"), 2); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	snap, err := s.GetLatestSnapshot(ctx, docID)
	if err != nil || snap == nil {
		t.Fatalf("GetLatestSnapshot = (%v, %v), want a record", snap, err)
	}
	if snap.Seq != 2 || !bytes.Equal(snap.Payload, []byte("state@2")) {
		t.Fatalf("snapshot = %+v, want seq=2 payload=state@2", snap)
	}

	tail, err := s.GetUpdatesSince(ctx, docID, snap.Seq)
	if err != nil {
		t.Fatalf("GetUpdatesSince: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("tail length = %d, want 2", len(tail))
	}
	for i, rec := range tail {
		wantSeq := snap.Seq + uint64(i) + 1
		if rec.Seq != wantSeq {
			t.Fatalf("tail[%d].Seq = %d, want ascending from %d", i, rec.Seq, snap.Seq+1)
		}
		if !bytes.Equal(rec.Payload, payloads[wantSeq-1]) {
			t.Fatalf("tail[%d].Payload = %q, want %q", i, rec.Payload, payloads[wantSeq-1])
		}
	}

	// 快照 + 尾部 与 从头回放覆盖同一历史
	full, err := s.GetUpdatesSince(ctx, docID, 0)
	if err != nil {
		t.Fatalf("GetUpdatesSince(0): %v", err)
	}
	if len(full) != len(payloads) {
		t.Fatalf("full replay length = %d, want %d: snapshots must not prune updates", len(full), len(payloads))
	}
}

func TestUpdateStore_DuplicateSnapshotTolerated(t *testing.T) {
	db := testDB(t)
	s := NewDocUpdateStore(db)
	ctx := context.Background()
	docID := "doc-" + uuid.NewString()

	if _, err := s.AppendUpdate(ctx, docID, []byte("x"), 1); err != nil {
		t.Fatalf("AppendUpdate: %v", err)
	}
	if _, err := s.CreateSnapshot(ctx, docID, []byte("s1"), 1); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	// 两个客户端压缩到同一点不算失败
	if _, err := s.CreateSnapshot(ctx, docID, []byte("s1"), 1); err != nil {
		t.Fatalf("duplicate CreateSnapshot must be tolerated: %v", err)
	}
}

func TestUpdateStore_EmptyDocumentBaseline(t *testing.T) {
	db := testDB(t)
	s := NewDocUpdateStore(db)
	ctx := context.Background()
	docID := "doc-" + uuid.NewString()

	snap, err := s.GetLatestSnapshot(ctx, docID)
	if err != nil || snap != nil {
		t.Fatalf("GetLatestSnapshot on fresh doc = (%v, %v), want (nil, nil)", snap, err)
	}
	ups, err := s.GetUpdatesSince(ctx, docID, 0)
	if err != nil || len(ups) != 0 {
		t.Fatalf("GetUpdatesSince on fresh doc = (%v, %v), want empty", ups, err)
	}
	latest, err := s.GetLatestSeq(ctx, docID)
	if err != nil || latest != 0 {
		t.Fatalf("GetLatestSeq on fresh doc = (%d, %v), want 0", latest, err)
	}
}
