package cache

import (
	"context"
	"encoding/json"
	"time"

	"babachat/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// 每个房间在 Redis 里最多镜像这么多条最新消息。
const historyCap = 200

const opTimeout = 2 * time.Second

// Mirror 把消息日志和会话状态尽力而为地镜像到 Redis，仅供运维观察，
// 不是任何读路径的数据源。Redis 不可用时整体退化为关闭，服务照常跑。
// 所有方法对 nil 接收者安全。
type Mirror struct {
	rdb *redis.Client
}

// Connect 按地址建立镜像；地址为空或 ping 失败时返回 nil 并告警。
func Connect(addr string) *Mirror {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: opTimeout,
		ReadTimeout: opTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis mirror disabled")
		_ = rdb.Close()
		return nil
	}
	log.Info().Str("addr", addr).Msg("redis mirror connected")
	return &Mirror{rdb: rdb}
}

func historyKey(roomID string) string { return "chat:history:" + roomID }
func sessionKey(connID string) string { return "chat:session:" + connID }

// AppendMessage 把新消息追加到房间的镜像列表并截到上限。
func (m *Mirror) AppendMessage(roomID string, msg model.Message) {
	if m == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	pipe := m.rdb.Pipeline()
	pipe.RPush(ctx, historyKey(roomID), b)
	pipe.LTrim(ctx, historyKey(roomID), -historyCap, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Debug().Err(err).Str("room", roomID).Msg("mirror append failed")
	}
}

// SaveSession 记录连接当前的 (房间, 昵称)。
func (m *Mirror) SaveSession(connID, roomID, username string) {
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	err := m.rdb.HSet(ctx, sessionKey(connID), "room", roomID, "username", username).Err()
	if err != nil {
		log.Debug().Err(err).Str("conn", connID).Msg("mirror session save failed")
	}
}

func (m *Mirror) DeleteSession(connID string) {
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.rdb.Del(ctx, sessionKey(connID)).Err(); err != nil {
		log.Debug().Err(err).Str("conn", connID).Msg("mirror session delete failed")
	}
}

// PurgeRoom 在房间被删除后清掉它的镜像键。
func (m *Mirror) PurgeRoom(roomID string) {
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.rdb.Del(ctx, historyKey(roomID)).Err(); err != nil {
		log.Debug().Err(err).Str("room", roomID).Msg("mirror purge failed")
	}
}

func (m *Mirror) Close() {
	if m == nil {
		return
	}
	_ = m.rdb.Close()
}
