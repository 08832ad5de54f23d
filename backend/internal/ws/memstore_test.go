package ws

import (
	"context"
	"sync"
	"time"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
)

// memStore 测试用的内存 collab.Store 实现，发号在锁内完成。
type memStore struct {
	mu        sync.Mutex
	updates   map[string][]collab.UpdateRecord
	snapshots map[string][]collab.SnapshotRecord
}

func newMemStore() *memStore {
	return &memStore{
		updates:   make(map[string][]collab.UpdateRecord),
		snapshots: make(map[string][]collab.SnapshotRecord),
	}
}

func (s *memStore) GetLatestSnapshot(ctx context.Context, docID string) (*collab.SnapshotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snaps := s.snapshots[docID]
	if len(snaps) == 0 {
		return nil, nil
	}
	best := snaps[0]
	for _, sn := range snaps[1:] {
		if sn.Seq > best.Seq {
			best = sn
		}
	}
	return &best, nil
}

func (s *memStore) GetUpdatesSince(ctx context.Context, docID string, since uint64) ([]collab.UpdateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []collab.UpdateRecord
	for _, u := range s.updates[docID] {
		if u.Seq > since {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) GetLatestSeq(ctx context.Context, docID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ups := s.updates[docID]
	if len(ups) == 0 {
		return 0, nil
	}
	return ups[len(ups)-1].Seq, nil
}

func (s *memStore) AppendUpdate(ctx context.Context, docID string, payload []byte, actorID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var seq uint64 = 1
	if ups := s.updates[docID]; len(ups) > 0 {
		seq = ups[len(ups)-1].Seq + 1
	}
	s.updates[docID] = append(s.updates[docID], collab.UpdateRecord{
		DocumentID: docID, Seq: seq, Payload: payload, ActorID: actorID,
	})
	return seq, nil
}

func (s *memStore) CreateSnapshot(ctx context.Context, docID string, payload []byte, seq uint64) (*collab.SnapshotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := collab.SnapshotRecord{DocumentID: docID, Seq: seq, Payload: payload}
	s.snapshots[docID] = append(s.snapshots[docID], rec)
	return &rec, nil
}

// memBoardState 记录最近一次写入的白板主状态。
type memBoardState struct {
	mu    sync.Mutex
	state map[string][]byte
}

func newMemBoardState() *memBoardState {
	return &memBoardState{state: make(map[string][]byte)}
}

func (s *memBoardState) SaveBoardState(ctx context.Context, boardID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[boardID] = state
	return nil
}

// memPresence 测试用的内存 PresenceCache，忽略 TTL。
type memPresence struct {
	mu      sync.Mutex
	members map[string]map[uint64]collab.UserInfo
	cursors map[string]map[uint64][]byte
}

var _ cache.PresenceCache = (*memPresence)(nil)

func newMemPresence() *memPresence {
	return &memPresence{
		members: make(map[string]map[uint64]collab.UserInfo),
		cursors: make(map[string]map[uint64][]byte),
	}
}

func (p *memPresence) AddMember(ctx context.Context, docID string, user collab.UserInfo, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[docID] == nil {
		p.members[docID] = make(map[uint64]collab.UserInfo)
	}
	p.members[docID][user.ID] = user
	return nil
}

func (p *memPresence) RemoveMember(ctx context.Context, docID string, userID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members[docID], userID)
	delete(p.cursors[docID], userID)
	return nil
}

func (p *memPresence) AliveMembers(ctx context.Context, docID string) ([]collab.UserInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []collab.UserInfo
	for _, u := range p.members[docID] {
		out = append(out, u)
	}
	return out, nil
}

func (p *memPresence) SetCursor(ctx context.Context, docID string, userID uint64, jsonData []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursors[docID] == nil {
		p.cursors[docID] = make(map[uint64][]byte)
	}
	p.cursors[docID][userID] = jsonData
	return nil
}

func (p *memPresence) GetCursor(ctx context.Context, docID string, userID uint64) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursors[docID][userID], nil
}

// drain 非阻塞地取空连接的出站队列。
func drain(c *Conn) []OutboundMessage {
	var out []OutboundMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}
