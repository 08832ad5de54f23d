package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"syncServer/backend/internal/collab"
)

// Conn 是一条活跃连接：底层 socket、所属文档、已认证身份、出站队列。
// 读循环（协议分派）和写循环（出站泵）各占一个 goroutine。
type Conn struct {
	ws    *websocket.Conn
	docID string
	user  collab.UserInfo
	// mu 保护 closed 与对 send 的写入端：退场期间撞进来的广播
	// 必须安全丢弃，不能 panic 在已关闭的 channel 上。
	mu     sync.Mutex
	closed bool
	// 出站消息队列；写循环持续消费并逐条 WriteJSON
	send chan OutboundMessage
}

func newConn(wsConn *websocket.Conn, docID string, user collab.UserInfo) *Conn {
	return &Conn{ws: wsConn, docID: docID, user: user, send: make(chan OutboundMessage, 32)}
}

// Enqueue 非阻塞入队。队列满说明这个客户端消费太慢，丢弃这条消息；
// 它之后靠重连重新同步，慢客户端不能拖住广播循环。
// 连接已进入关闭流程时同样丢弃。
func (c *Conn) Enqueue(msg OutboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend 关闭出站队列并让写循环退出。幂等。
// 调用方必须先把连接从 Hub 摘掉，关闭后的 Enqueue 才只剩无害的丢弃路径。
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// frameHandler 由文档/白板会话实现；返回 error 表示存储层故障，
// 连接随之防御性关闭，客户端重连重放比带着未确认状态继续更安全。
type frameHandler interface {
	handle(ctx context.Context, msg ClientMessage) error
}

// readLoop 不负责关闭出站队列：关闭必须发生在 hub.Leave 之后，
// 顺序由端点处理器的退场 defer 统一保证。
func (c *Conn) readLoop(ctx context.Context, h frameHandler) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			// 连接关闭（客户端主动断开或网络故障），交给调用方走离开流程
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			// 非 JSON 或没有类型标签：静默丢弃，连接保持
			continue
		}
		if err := h.handle(ctx, msg); err != nil {
			log.Printf("handle frame failed, closing (user=%d, doc=%s, type=%s): %v",
				c.user.ID, c.docID, msg.Type, err)
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
