package collab

import "time"

// UpdateEvent 每条落库成功的更新都会以该事件异步发往 Kafka，
// 供外部消费方（CRDT 合并、搜索索引等）在同步路径之外处理。
// 引擎从不在线内解读 Payload，语义处理全部走这条带外链路。
type UpdateEvent struct {
	EventType string    `json:"eventType"` // 固定 "UPDATE_APPLIED"
	EventID   string    `json:"eventId"`
	DocType   string    `json:"docType"` // document / whiteboard
	DocID     string    `json:"docId"`
	Seq       uint64    `json:"seq"`
	ActorID   uint64    `json:"actorId"`
	AppliedAt time.Time `json:"appliedAt"`
}
