package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"syncServer/backend/internal/auth"
	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
)

// 全局的 WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

// Manager 把每条新连接推过握手状态机：
// 认证（握手凭证）→ 文档解析与访问校验 → 初始同步 → 入房 → 消息循环 → 离房。
// 初始同步帧必须先于 Join 入队，客户端拿到基线之前不会收到任何广播。
type Manager struct {
	verifier *auth.Verifier

	docHub    *Hub
	docStore  collab.Store
	docAccess collab.AccessChecker

	boardHub    *Hub
	boardStore  collab.Store
	boardAccess collab.AccessChecker
	boards      collab.BoardStateStore

	users    collab.UserDirectory
	presence cache.PresenceCache
	events   *collab.Dispatcher
	sem      *collab.Semaphore
}

type ManagerOptions struct {
	Verifier    *auth.Verifier
	DocHub      *Hub
	DocStore    collab.Store
	DocAccess   collab.AccessChecker
	BoardHub    *Hub
	BoardStore  collab.Store
	BoardAccess collab.AccessChecker
	Boards      collab.BoardStateStore
	Users       collab.UserDirectory
	Presence    cache.PresenceCache
	Events      *collab.Dispatcher
	Sem         *collab.Semaphore
}

func NewManager(opt ManagerOptions) *Manager {
	return &Manager{
		verifier:    opt.Verifier,
		docHub:      opt.DocHub,
		docStore:    opt.DocStore,
		docAccess:   opt.DocAccess,
		boardHub:    opt.BoardHub,
		boardStore:  opt.BoardStore,
		boardAccess: opt.BoardAccess,
		boards:      opt.Boards,
		users:       opt.Users,
		presence:    opt.Presence,
		events:      opt.Events,
		sem:         opt.Sem,
	}
}

// closeWithReason 发送策略违规关闭帧后断开。失败也无所谓，defer 的 Close 会兜底。
func closeWithReason(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// setup 完成认证与访问校验，失败时已向客户端发过关闭帧。
func (m *Manager) setup(conn *websocket.Conn, r *http.Request, docID string,
	access collab.AccessChecker, notFoundReason string) (collab.UserInfo, bool) {

	token := auth.TokenFromRequest(r)
	if token == "" {
		closeWithReason(conn, "Unauthorized")
		return collab.UserInfo{}, false
	}
	claims, err := m.verifier.ParseAccess(token)
	if err != nil {
		closeWithReason(conn, "Unauthorized")
		return collab.UserInfo{}, false
	}

	if docID == "" {
		closeWithReason(conn, notFoundReason)
		return collab.UserInfo{}, false
	}
	ctx := r.Context()
	if err := access.Authorize(ctx, docID, claims.UserID); err != nil {
		if errors.Is(err, collab.ErrNotFound) {
			closeWithReason(conn, notFoundReason)
		} else {
			log.Printf("authorize failed (doc=%s, user=%d): %v", docID, claims.UserID, err)
			closeWithReason(conn, "Access denied")
		}
		return collab.UserInfo{}, false
	}

	user, err := m.users.LookupUser(ctx, claims.UserID)
	if err != nil {
		log.Printf("lookup user failed (user=%d): %v", claims.UserID, err)
		closeWithReason(conn, "Access denied")
		return collab.UserInfo{}, false
	}
	if user.Name == "" {
		user.Name = claims.Username
	}
	if user.AvatarURL == "" {
		user.AvatarURL = claims.AvatarURL
	}
	return user, true
}

// DocWebSocket 富文本文档的协作端点。
func (m *Manager) DocWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	docID := c.Query("docId")
	user, ok := m.setup(conn, c.Request, docID, m.docAccess, "Document not found")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	wsConn := newConn(conn, docID, user)
	sess := newDocSession(wsConn, m.docHub, m.docStore, m.events, m.sem)

	syncMsg, err := sess.syncMessage(ctx)
	if err != nil {
		log.Printf("build doc sync failed (doc=%s, user=%d): %v", docID, user.ID, err)
		closeWithReason(conn, "Access denied")
		return
	}

	// 先启动写循环；同步帧先于 Join 入队，广播不可能越过基线送达
	go wsConn.writeLoop()
	wsConn.send <- syncMsg
	m.docHub.Join(docID, wsConn)
	// 退场顺序固定：先离房（之后的广播看不到这条连接），再关出站队列。
	// 用 defer 保证读循环无论怎么退出都不泄漏房间成员。
	defer wsConn.closeSend()
	defer m.docHub.Leave(docID, wsConn)

	// 读循环阻塞至连接关闭或存储故障
	wsConn.readLoop(ctx, sess)
}

// BoardWebSocket 白板的协作端点。
func (m *Manager) BoardWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	boardID := c.Query("boardId")
	user, ok := m.setup(conn, c.Request, boardID, m.boardAccess, "Whiteboard not found")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	wsConn := newConn(conn, boardID, user)
	sess := newBoardSession(wsConn, m.boardHub, m.boardStore, m.boards, m.presence, m.events, m.sem)

	syncMsg, err := sess.syncMessage(ctx)
	if err != nil {
		log.Printf("build board sync failed (board=%s, user=%d): %v", boardID, user.ID, err)
		closeWithReason(conn, "Access denied")
		return
	}

	go wsConn.writeLoop()
	wsConn.send <- syncMsg
	m.boardHub.Join(boardID, wsConn)
	// 退场顺序同文档端点：先离房再关出站队列，且整个退场挂在 defer 上
	defer func() {
		m.boardHub.Leave(boardID, wsConn)
		sess.announceLeave()
		if m.presence != nil {
			// 读循环退出时请求上下文多半已取消，摘除在线状态用独立的短超时
			rmCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := m.presence.RemoveMember(rmCtx, boardID, user.ID); err != nil {
				log.Printf("remove presence failed (board=%s, user=%d): %v", boardID, user.ID, err)
			}
		}
		wsConn.closeSend()
	}()
	sess.announceJoin()
	if m.presence != nil {
		if err := m.presence.AddMember(ctx, boardID, user, boardPresenceTTL); err != nil {
			log.Printf("add presence failed (board=%s, user=%d): %v", boardID, user.ID, err)
		}
	}

	wsConn.readLoop(ctx, sess)
}
