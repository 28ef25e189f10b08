package service

import (
	"strings"
	"time"

	"babachat/internal/model"
)

// messageLog 是单个房间的有序消息日志，序号严格递增、永不复用。
// 自身不加锁，所有访问都由所属 Room 的互斥锁串行化。
type messageLog struct {
	msgs   []*storedMessage
	nextID int64
}

type storedMessage struct {
	msg model.Message
	// reactedBy 记录每个表情符号下已点过的 actor，toggle 语义靠它实现。
	reactedBy map[string]map[string]struct{}
}

func newMessageLog() messageLog {
	return messageLog{nextID: 1}
}

// snapshot 复制一条消息，reaction 计数表深拷贝，广播序列化发生在锁外。
func (s *storedMessage) snapshot() model.Message {
	out := s.msg
	if len(s.msg.Reactions) > 0 {
		out.Reactions = make(map[string]int, len(s.msg.Reactions))
		for k, v := range s.msg.Reactions {
			out.Reactions[k] = v
		}
	} else {
		out.Reactions = nil
	}
	return out
}

func (l *messageLog) append(typ model.MessageType, username, body string, now time.Time) model.Message {
	sm := &storedMessage{
		msg: model.Message{
			ID:        l.nextID,
			Type:      typ,
			Content:   body,
			Username:  username,
			Timestamp: now,
		},
	}
	l.nextID++
	l.msgs = append(l.msgs, sm)
	return sm.snapshot()
}

func (l *messageLog) appendUser(username, body string, now time.Time) model.Message {
	return l.append(model.MessageUser, username, body, now)
}

func (l *messageLog) appendSystem(body string, now time.Time) model.Message {
	return l.append(model.MessageSystem, "", body, now)
}

// page 从最新消息向旧方向取一页：offset 是已加载的最新消息条数，
// limit 是本页条数。越过日志起点时返回不足 limit 的结果而不是报错。
func (l *messageLog) page(offset, limit int) []model.Message {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []model.Message{}
	}
	end := len(l.msgs) - offset
	if end <= 0 {
		return []model.Message{}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]model.Message, 0, end-start)
	for _, sm := range l.msgs[start:end] {
		out = append(out, sm.snapshot())
	}
	return out
}

// search 大小写不敏感的子串匹配，最新的排在最前，数量只受日志长度限制。
func (l *messageLog) search(query string) []model.Message {
	q := strings.ToLower(query)
	var out []model.Message
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(l.msgs[i].msg.Content), q) {
			out = append(out, l.msgs[i].snapshot())
		}
	}
	if out == nil {
		out = []model.Message{}
	}
	return out
}

// toggleReaction 对 (消息, actor, 表情) 做开关：未点过则 +1 并记录，
// 点过则 -1 并撤销，计数归零的条目直接删除。返回更新后的完整计数表。
func (l *messageLog) toggleReaction(id int64, emoji, actor string) (map[string]int, bool) {
	sm := l.find(id)
	if sm == nil {
		return nil, false
	}
	if sm.reactedBy == nil {
		sm.reactedBy = make(map[string]map[string]struct{})
	}
	actors := sm.reactedBy[emoji]
	if actors == nil {
		actors = make(map[string]struct{})
		sm.reactedBy[emoji] = actors
	}
	if sm.msg.Reactions == nil {
		sm.msg.Reactions = make(map[string]int)
	}
	if _, ok := actors[actor]; ok {
		delete(actors, actor)
		if sm.msg.Reactions[emoji] <= 1 {
			delete(sm.msg.Reactions, emoji)
			delete(sm.reactedBy, emoji)
		} else {
			sm.msg.Reactions[emoji]--
		}
	} else {
		actors[actor] = struct{}{}
		sm.msg.Reactions[emoji]++
	}
	tally := make(map[string]int, len(sm.msg.Reactions))
	for k, v := range sm.msg.Reactions {
		tally[k] = v
	}
	return tally, true
}

func (l *messageLog) find(id int64) *storedMessage {
	// 序号从 1 起且连续分配，可直接按下标定位
	idx := int(id) - 1
	if idx < 0 || idx >= len(l.msgs) {
		return nil
	}
	return l.msgs[idx]
}

func (l *messageLog) len() int { return len(l.msgs) }
