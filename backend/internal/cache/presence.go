package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"syncServer/backend/internal/collab"
)

// PresenceCache 跨进程的在线状态。单个 Hub 的房间表只覆盖本进程的连接，
// 多副本部署时协作者列表要从这里读。
type PresenceCache interface {
	AddMember(ctx context.Context, docID string, user collab.UserInfo, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID string, userID uint64) error
	AliveMembers(ctx context.Context, docID string) ([]collab.UserInfo, error)
	SetCursor(ctx context.Context, docID string, userID uint64, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, docID string, userID uint64) ([]byte, error)
}

// 具体实现：基于 redis 的 PresenceCache
type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) PresenceCache {
	return &redisPresence{rdb: rdb}
}

func (p *redisPresence) AddMember(ctx context.Context, docID string, user collab.UserInfo, ttl time.Duration) error {
	info, err := json.Marshal(user)
	if err != nil {
		return err
	}
	pipe := p.rdb.Pipeline()
	// 房间成员集合
	pipe.SAdd(ctx, roomKey(docID), user.ID)
	// 心跳键，TTL 过期即视为离线；刷新心跳直接重复调用 AddMember
	pipe.Set(ctx, memberKey(docID, user.ID), "1", ttl)
	// 展示信息表（哈希）
	pipe.HSet(ctx, infoKey(docID), strconv.FormatUint(user.ID, 10), info)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID string, userID uint64) error {
	field := strconv.FormatUint(userID, 10)
	pipe := p.rdb.Pipeline()
	pipe.SRem(ctx, roomKey(docID), userID)
	pipe.Del(ctx, memberKey(docID, userID))
	pipe.HDel(ctx, infoKey(docID), field)
	pipe.Del(ctx, cursorKey(docID, userID))
	_, err := pipe.Exec(ctx)
	return err
}

func (p *redisPresence) AliveMembers(ctx context.Context, docID string) ([]collab.UserInfo, error) {
	// step1: 候选成员
	userIDs, err := p.rdb.SMembers(ctx, roomKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	// step2: 心跳键还在的才算在线
	existsCmds := make([]*redis.IntCmd, 0, len(userIDs))
	pipe := p.rdb.Pipeline()
	for _, raw := range userIDs {
		uid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		existsCmds = append(existsCmds, pipe.Exists(ctx, memberKey(docID, uid)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	aliveFields := make([]string, 0, len(userIDs))
	for i, cmd := range existsCmds {
		if cmd.Val() == 1 {
			aliveFields = append(aliveFields, userIDs[i])
		}
	}
	if len(aliveFields) == 0 {
		return nil, nil
	}

	// step3: 取展示信息
	infos, err := p.rdb.HMGet(ctx, infoKey(docID), aliveFields...).Result()
	if err != nil {
		return nil, err
	}
	members := make([]collab.UserInfo, 0, len(aliveFields))
	for i, v := range infos {
		raw, _ := v.(string)
		var u collab.UserInfo
		if raw == "" || json.Unmarshal([]byte(raw), &u) != nil {
			// 信息表缺失时至少带上 ID
			uid, err := strconv.ParseUint(aliveFields[i], 10, 64)
			if err != nil {
				return nil, err
			}
			u = collab.UserInfo{ID: uid}
		}
		members = append(members, u)
	}
	return members, nil
}

func (p *redisPresence) SetCursor(ctx context.Context, docID string, userID uint64, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(docID, userID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, docID string, userID uint64) ([]byte, error) {
	return p.rdb.Get(ctx, cursorKey(docID, userID)).Bytes()
}
