package ws

import (
	"sync"
	"time"

	"syncServer/backend/internal/collab"
)

// 快照触发策略的参考值：按条数和按时间两个维度独立兜底，
// 分别约束最坏回放长度和最坏过期程度。
const (
	DefaultSnapshotBatch    = 50
	DefaultSnapshotInterval = 30 * time.Second
)

type room struct {
	// 房间里存的是连接而不是 userID：一个用户可开多个标签页/设备，
	// 广播要逐连接发，不能只按 userID 发一次。
	conns map[*Conn]struct{}
	// 上一次快照请求放行的时刻，房间创建时初始化为 now
	lastSnapshotRequestAt time.Time
}

// Hub 维护 docID → 房间（当前连接集合）的内存映射，并承担广播扇出
// 与快照触发策略。文档和白板各构造一个实例，行为一致。
// 进程启动时显式构造、注入每个连接处理器，不做包级单例。
type Hub struct {
	// 读写锁保护 rooms；加入/离开与广播迭代互斥，
	// 避免 leave 和 broadcast 竞争时向半删除的连接投递。
	mu    sync.RWMutex
	rooms map[string]*room

	snapshotBatch    int
	snapshotInterval time.Duration
	// 时间源可注入，时间触发分支才能在测试里拨表
	now func() time.Time
}

func NewHub(snapshotBatch int, snapshotInterval time.Duration) *Hub {
	if snapshotBatch <= 0 {
		snapshotBatch = DefaultSnapshotBatch
	}
	if snapshotInterval <= 0 {
		snapshotInterval = DefaultSnapshotInterval
	}
	return &Hub{
		rooms:            make(map[string]*room),
		snapshotBatch:    snapshotBatch,
		snapshotInterval: snapshotInterval,
		now:              time.Now,
	}
}

// Join 将连接加入指定文档房间，房间不存在时惰性创建。
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[docID]
	if r == nil {
		r = &room{conns: make(map[*Conn]struct{}), lastSnapshotRequestAt: h.now()}
		h.rooms[docID] = r
	}
	r.conns[c] = struct{}{}
}

// Leave 将连接从指定文档房间移除；最后一个连接离开时整个房间销毁，不留空房间。
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[docID]; ok {
		delete(r.conns, c)
		if len(r.conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// Broadcast 把消息发给房间内除 exclude 之外的所有成员（exclude 通常是发送者，防回声）。
// 房间不存在时是 no-op。单个成员投递失败（队列满被丢弃）不影响其他成员，
// 也不会把它移出房间——移除只走连接层关闭检测触发的 Leave。
func (h *Hub) Broadcast(docID string, msg OutboundMessage, exclude *Conn) {
	h.mu.RLock()
	r := h.rooms[docID]
	var targets []*Conn
	if r != nil {
		targets = make([]*Conn, 0, len(r.conns))
		for c := range r.conns {
			if c != exclude {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.Enqueue(msg)
	}
}

// ShouldRequestSnapshot 判断是否该向客户端请求一次压缩快照。有状态：
// 返回 true 的同时重置该房间的计时器。
// 触发条件：seq 是批大小的正整数倍，或距上次放行已超过间隔。
func (h *Hub) ShouldRequestSnapshot(docID string, seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[docID]
	if r == nil {
		return false
	}
	now := h.now()
	if seq > 0 && seq%uint64(h.snapshotBatch) == 0 {
		r.lastSnapshotRequestAt = now
		return true
	}
	if now.Sub(r.lastSnapshotRequestAt) > h.snapshotInterval {
		r.lastSnapshotRequestAt = now
		return true
	}
	return false
}

// Collaborators 返回房间内当前在线的用户（去重后）。
func (h *Hub) Collaborators(docID string) []collab.UserInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rooms[docID]
	if r == nil {
		return nil
	}
	seen := make(map[uint64]struct{}, len(r.conns))
	out := make([]collab.UserInfo, 0, len(r.conns))
	for c := range r.conns {
		if _, ok := seen[c.user.ID]; ok {
			continue
		}
		seen[c.user.ID] = struct{}{}
		out = append(out, c.user)
	}
	return out
}

// HasRoom 供测试和诊断检查房间生命周期。
func (h *Hub) HasRoom(docID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[docID]
	return ok
}
