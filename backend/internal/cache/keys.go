package cache

import "fmt"

// 键语义：
// - roomKey(docID):           房间成员集合（Set<userId>）
// - memberKey(docID,userID):  成员心跳键（String，占位"1"，带 TTL）
// - infoKey(docID):           房间内 userId→UserInfo JSON 映射（Hash）
// - cursorKey(docID,userID):  成员光标/指针 JSON（String，带 TTL）

const (
	keyRoomFmt   = "presence:room:%s"      // Set<userId>
	keyMemberFmt = "presence:member:%s:%d" // String "1" with TTL
	keyInfoFmt   = "presence:info:%s"      // Hash<userId -> UserInfo JSON>
	keyCursorFmt = "presence:cursor:%s:%d" // String JSON with TTL
)

func roomKey(docID string) string                  { return fmt.Sprintf(keyRoomFmt, docID) }
func memberKey(docID string, userID uint64) string { return fmt.Sprintf(keyMemberFmt, docID, userID) }
func infoKey(docID string) string                  { return fmt.Sprintf(keyInfoFmt, docID) }
func cursorKey(docID string, userID uint64) string { return fmt.Sprintf(keyCursorFmt, docID, userID) }
