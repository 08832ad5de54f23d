package ws

import (
	"encoding/json"

	"syncServer/backend/internal/collab"
)

// 入站帧的标签联合。所有客户端消息共用一个外壳，按 Type 精确分派；
// 未知或缺字段的帧走显式的忽略分支，不回错误（恶意/有 bug 的对端
// 不应能逼出协议层错误流量）。
type ClientMessage struct {
	Type     string          `json:"type"`
	Update   json.RawMessage `json:"update,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// 入站消息类型
const (
	MsgDocUpdate      = "doc.update"
	MsgDocSnapshot    = "doc.snapshot"
	MsgPresenceUpdate = "presence.update"
	MsgBoardUpdate    = "whiteboard.update"
	MsgBoardSnapshot  = "whiteboard.snapshot"
	MsgBoardPresence  = "whiteboard.presence"
)

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// —— 文档变体 ——

// DocSyncMessage 初始同步帧：最新快照（可为 null）+ 快照之后的全部更新 + 当前水位。
type DocSyncMessage struct {
	Type      string   `json:"type"` // 固定 "doc.sync"
	Snapshot  []byte   `json:"snapshot"`
	Updates   [][]byte `json:"updates"`
	LatestSeq uint64   `json:"latestSeq"`
}

type DocUpdateMessage struct {
	Type    string `json:"type"` // 固定 "doc.update"
	Update  []byte `json:"update"`
	Seq     uint64 `json:"seq"`
	ActorID uint64 `json:"actorId"`
}

// DocAckMessage 回给发送方的落库确认，带上存储层分配的 seq。
type DocAckMessage struct {
	Type string `json:"type"` // 固定 "doc.ack"
	Seq  uint64 `json:"seq"`
}

type DocSnapshotRequestMessage struct {
	Type string `json:"type"` // 固定 "doc.snapshot.request"
}

type PresenceBroadcastMessage struct {
	Type   string          `json:"type"` // 固定 "presence.broadcast"
	Update json.RawMessage `json:"update"`
}

// —— 白板变体 ——

type BoardSyncMessage struct {
	Type          string            `json:"type"` // 固定 "whiteboard.sync"
	Snapshot      json.RawMessage   `json:"snapshot"`
	Updates       []json.RawMessage `json:"updates"`
	LatestSeq     uint64            `json:"latestSeq"`
	Collaborators []collab.UserInfo `json:"collaborators"`
	// 在线协作者最近一次上报的指针（userId → presence JSON），没有就缺席
	Cursors map[uint64]json.RawMessage `json:"cursors,omitempty"`
}

type BoardUpdateMessage struct {
	Type    string          `json:"type"` // 固定 "whiteboard.update"
	Update  json.RawMessage `json:"update"`
	Seq     uint64          `json:"seq"`
	ActorID uint64          `json:"actorId"`
}

type BoardAckMessage struct {
	Type string `json:"type"` // 固定 "whiteboard.ack"
	Seq  uint64 `json:"seq"`
}

type BoardSnapshotRequestMessage struct {
	Type string `json:"type"` // 固定 "whiteboard.snapshot.request"
}

type BoardPresenceMessage struct {
	Type   string          `json:"type"` // 固定 "whiteboard.presence"
	User   collab.UserInfo `json:"user"`
	Update json.RawMessage `json:"update"`
}

type BoardJoinMessage struct {
	Type         string          `json:"type"` // 固定 "whiteboard.join"
	Collaborator collab.UserInfo `json:"collaborator"`
}

type BoardLeaveMessage struct {
	Type   string `json:"type"` // 固定 "whiteboard.leave"
	UserID uint64 `json:"userId"`
}

// 隐式实现 OutboundMessage 接口
func (m DocSyncMessage) MessageType() string              { return m.Type }
func (m DocUpdateMessage) MessageType() string            { return m.Type }
func (m DocAckMessage) MessageType() string               { return m.Type }
func (m DocSnapshotRequestMessage) MessageType() string   { return m.Type }
func (m PresenceBroadcastMessage) MessageType() string    { return m.Type }
func (m BoardSyncMessage) MessageType() string            { return m.Type }
func (m BoardUpdateMessage) MessageType() string          { return m.Type }
func (m BoardAckMessage) MessageType() string             { return m.Type }
func (m BoardSnapshotRequestMessage) MessageType() string { return m.Type }
func (m BoardPresenceMessage) MessageType() string        { return m.Type }
func (m BoardJoinMessage) MessageType() string            { return m.Type }
func (m BoardLeaveMessage) MessageType() string           { return m.Type }
