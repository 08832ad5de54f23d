package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"syncServer/backend/internal/collab"
)

// 单次落库（含发号）允许占用的时间；超时视为存储故障走连接关闭
const appendTimeout = 200 * time.Millisecond

// docSession 富文本文档变体的协议会话。更新/快照载荷是不透明字节，
// 引擎只排序和转发，从不解读编辑语义。
type docSession struct {
	conn   *Conn
	hub    *Hub
	store  collab.Store
	events *collab.Dispatcher
	sem    *collab.Semaphore
}

func newDocSession(conn *Conn, hub *Hub, store collab.Store, events *collab.Dispatcher, sem *collab.Semaphore) *docSession {
	return &docSession{conn: conn, hub: hub, store: store, events: events, sem: sem}
}

func (s *docSession) handle(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case MsgDocUpdate:
		return s.handleUpdate(ctx, msg)
	case MsgDocSnapshot:
		return s.handleSnapshot(ctx, msg)
	case MsgPresenceUpdate:
		s.handlePresence(msg)
		return nil
	default:
		// 未知类型：显式忽略
		return nil
	}
}

func (s *docSession) handleUpdate(ctx context.Context, msg ClientMessage) error {
	var payload []byte
	if err := json.Unmarshal(msg.Update, &payload); err != nil || len(payload) == 0 {
		return nil
	}

	appendCtx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if s.sem != nil {
		if err := s.sem.Acquire(appendCtx); err != nil {
			return err
		}
		defer s.sem.Release()
	}

	// seq 在这里（落库时刻）确定，这是每文档更新全序的建立点
	seq, err := s.store.AppendUpdate(appendCtx, s.conn.docID, payload, s.conn.user.ID)
	if err != nil {
		return err
	}

	s.hub.Broadcast(s.conn.docID, DocUpdateMessage{
		Type:    MsgDocUpdate,
		Update:  payload,
		Seq:     seq,
		ActorID: s.conn.user.ID,
	}, s.conn)

	publishUpdateEvent(ctx, s.events, collab.DocTypeDocument, s.conn.docID, s.conn.user.ID, seq)

	// 请求只发给本条更新的发送方：它手里的状态最新，最适合产出压缩快照
	if s.hub.ShouldRequestSnapshot(s.conn.docID, seq) {
		s.conn.Enqueue(DocSnapshotRequestMessage{Type: "doc.snapshot.request"})
	}

	// 最后确认发送方，客户端据此对账本地状态
	s.conn.Enqueue(DocAckMessage{Type: "doc.ack", Seq: seq})
	return nil
}

func (s *docSession) handleSnapshot(ctx context.Context, msg ClientMessage) error {
	var payload []byte
	if err := json.Unmarshal(msg.Snapshot, &payload); err != nil || len(payload) == 0 {
		return nil
	}
	latest, err := s.store.GetLatestSeq(ctx, s.conn.docID)
	if err != nil {
		return err
	}
	// 快照是尽力而为的压缩贡献，不单独确认
	_, err = s.store.CreateSnapshot(ctx, s.conn.docID, payload, latest)
	return err
}

func (s *docSession) handlePresence(msg ClientMessage) {
	if len(msg.Update) == 0 {
		return
	}
	// 只转发不落库
	s.hub.Broadcast(s.conn.docID, PresenceBroadcastMessage{
		Type:   "presence.broadcast",
		Update: msg.Update,
	}, s.conn)
}

// syncMessage 组装初始同步帧：最新快照 + 其后的全部更新 + 当前水位。
func (s *docSession) syncMessage(ctx context.Context) (DocSyncMessage, error) {
	out := DocSyncMessage{Type: "doc.sync", Updates: [][]byte{}}
	snap, err := s.store.GetLatestSnapshot(ctx, s.conn.docID)
	if err != nil {
		return out, err
	}
	var since uint64
	if snap != nil {
		out.Snapshot = snap.Payload
		since = snap.Seq
	}
	updates, err := s.store.GetUpdatesSince(ctx, s.conn.docID, since)
	if err != nil {
		return out, err
	}
	for _, u := range updates {
		out.Updates = append(out.Updates, u.Payload)
	}
	out.LatestSeq, err = s.store.GetLatestSeq(ctx, s.conn.docID)
	if err != nil {
		return out, err
	}
	return out, nil
}

// publishUpdateEvent 把已落库的更新发往带外事件流（Kafka）。
// 尽力而为：队列满或超时只记日志，不影响同步路径。
func publishUpdateEvent(ctx context.Context, d *collab.Dispatcher, docType, docID string, actorID, seq uint64) {
	if d == nil {
		return
	}
	evtCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err := d.Publish(evtCtx, collab.UpdateEvent{
		EventType: "UPDATE_APPLIED",
		EventID:   uuid.NewString(),
		DocType:   docType,
		DocID:     docID,
		Seq:       seq,
		ActorID:   actorID,
		AppliedAt: time.Now(),
	})
	if err != nil {
		log.Printf("drop update event doc=%s seq=%d: %v", docID, seq, err)
	}
}
