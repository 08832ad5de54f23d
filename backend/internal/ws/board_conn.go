package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
)

// 白板在线状态的心跳与光标保活时长
const (
	boardPresenceTTL = 600 * time.Second
	boardCursorTTL   = 30 * time.Second
)

// boardPayload 白板载荷的结构外壳：元素列表 + 可选的附属文件表。
// 这里只校验形状，元素内容仍然不解读。
type boardPayload struct {
	Elements json.RawMessage `json:"elements"`
	Files    json.RawMessage `json:"files"`
}

// boardSession 白板变体的协议会话。与文档变体的差异：
// 载荷是结构化 JSON；收到快照时还要刷新白板主存储状态；
// presence 带指针/光标形状；加入/离开向房间广播成员增减。
type boardSession struct {
	conn     *Conn
	hub      *Hub
	store    collab.Store
	boards   collab.BoardStateStore
	presence cache.PresenceCache
	events   *collab.Dispatcher
	sem      *collab.Semaphore
}

func newBoardSession(conn *Conn, hub *Hub, store collab.Store, boards collab.BoardStateStore,
	presence cache.PresenceCache, events *collab.Dispatcher, sem *collab.Semaphore) *boardSession {
	return &boardSession{conn: conn, hub: hub, store: store, boards: boards,
		presence: presence, events: events, sem: sem}
}

func (s *boardSession) handle(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case MsgBoardUpdate:
		return s.handleUpdate(ctx, msg)
	case MsgBoardSnapshot:
		return s.handleSnapshot(ctx, msg)
	case MsgBoardPresence:
		s.handlePresence(ctx, msg)
		return nil
	default:
		return nil
	}
}

func (s *boardSession) handleUpdate(ctx context.Context, msg ClientMessage) error {
	var payload boardPayload
	if err := json.Unmarshal(msg.Update, &payload); err != nil || payload.Elements == nil {
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

	// 按原始 JSON 字节落库，回放时原样返还
	seq, err := s.store.AppendUpdate(appendCtx, s.conn.docID, msg.Update, s.conn.user.ID)
	if err != nil {
		return err
	}

	s.hub.Broadcast(s.conn.docID, BoardUpdateMessage{
		Type:    MsgBoardUpdate,
		Update:  msg.Update,
		Seq:     seq,
		ActorID: s.conn.user.ID,
	}, s.conn)

	publishUpdateEvent(ctx, s.events, collab.DocTypeWhiteboard, s.conn.docID, s.conn.user.ID, seq)

	if s.hub.ShouldRequestSnapshot(s.conn.docID, seq) {
		s.conn.Enqueue(BoardSnapshotRequestMessage{Type: "whiteboard.snapshot.request"})
	}

	s.conn.Enqueue(BoardAckMessage{Type: "whiteboard.ack", Seq: seq})
	return nil
}

func (s *boardSession) handleSnapshot(ctx context.Context, msg ClientMessage) error {
	var payload boardPayload
	if err := json.Unmarshal(msg.Snapshot, &payload); err != nil || payload.Elements == nil {
		return nil
	}
	latest, err := s.store.GetLatestSeq(ctx, s.conn.docID)
	if err != nil {
		return err
	}
	if _, err := s.store.CreateSnapshot(ctx, s.conn.docID, msg.Snapshot, latest); err != nil {
		return err
	}
	// 快照落库之外刷新白板主状态，保证不开协作直接加载也是最新压缩内容
	return s.boards.SaveBoardState(ctx, s.conn.docID, msg.Snapshot)
}

func (s *boardSession) handlePresence(ctx context.Context, msg ClientMessage) {
	if len(msg.Update) == 0 {
		return
	}
	s.hub.Broadcast(s.conn.docID, BoardPresenceMessage{
		Type:   MsgBoardPresence,
		User:   s.conn.user,
		Update: msg.Update,
	}, s.conn)

	// presence 流量顺带续心跳、存光标，都是尽力而为
	if s.presence != nil {
		if err := s.presence.AddMember(ctx, s.conn.docID, s.conn.user, boardPresenceTTL); err != nil {
			log.Printf("refresh presence failed (board=%s, user=%d): %v", s.conn.docID, s.conn.user.ID, err)
		}
		if err := s.presence.SetCursor(ctx, s.conn.docID, s.conn.user.ID, msg.Update, boardCursorTTL); err != nil {
			log.Printf("save cursor failed (board=%s, user=%d): %v", s.conn.docID, s.conn.user.ID, err)
		}
	}
}

// syncMessage 组装白板初始同步帧，协作者列表优先取跨进程的 redis 视图，
// redis 不可用时退回本进程 Hub 的房间成员。
func (s *boardSession) syncMessage(ctx context.Context) (BoardSyncMessage, error) {
	out := BoardSyncMessage{
		Type:          "whiteboard.sync",
		Updates:       []json.RawMessage{},
		Collaborators: []collab.UserInfo{},
	}
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

	var members []collab.UserInfo
	if s.presence != nil {
		members, err = s.presence.AliveMembers(ctx, s.conn.docID)
		if err != nil {
			log.Printf("list presence failed, fall back to local hub (board=%s): %v", s.conn.docID, err)
			members = nil
		}
	}
	if members == nil {
		members = s.hub.Collaborators(s.conn.docID)
	}
	if members != nil {
		out.Collaborators = members
	}

	// 晚加入者还要看到各在线成员最近上报的指针，缺失的成员直接跳过
	if s.presence != nil {
		cursors := make(map[uint64]json.RawMessage, len(out.Collaborators))
		for _, u := range out.Collaborators {
			cur, err := s.presence.GetCursor(ctx, s.conn.docID, u.ID)
			if err != nil || len(cur) == 0 {
				continue
			}
			cursors[u.ID] = cur
		}
		if len(cursors) > 0 {
			out.Cursors = cursors
		}
	}
	return out, nil
}

// announceJoin / announceLeave 向房间其余成员广播成员增减。
func (s *boardSession) announceJoin() {
	s.hub.Broadcast(s.conn.docID, BoardJoinMessage{
		Type:         "whiteboard.join",
		Collaborator: s.conn.user,
	}, s.conn)
}

func (s *boardSession) announceLeave() {
	s.hub.Broadcast(s.conn.docID, BoardLeaveMessage{
		Type:   "whiteboard.leave",
		UserID: s.conn.user.ID,
	}, s.conn)
}
