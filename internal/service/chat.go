package service

import (
	"strings"
	"time"

	"babachat/internal/cache"
	"babachat/internal/config"
	"babachat/internal/metrics"
	"babachat/internal/model"

	"github.com/rs/zerolog/log"
)

// 出站事件名，与前端约定的事件目录一一对应。
const (
	EvtConnectSuccess = "connect_success"
	EvtRoomsList      = "rooms_list"
	EvtRoomCreated    = "room_created"
	EvtJoinSuccess    = "join_success"
	EvtLeaveSuccess   = "leave_success"
	EvtMessage        = "message"
	EvtUserList       = "user_list"
	EvtTypingStatus   = "typing_status"
	EvtReactionUpdate = "reaction_updated"
	EvtSearchResults  = "search_results"
	EvtMoreMessages   = "more_messages"
	EvtMention        = "mention_notification"
	EvtError          = "error"
	EvtHeartbeatAck   = "heartbeat_ack"
)

// Dispatcher 把房间事件投递给连接，由 ws 层实现。所有投递都是尽力而为：
// 单个连接投递失败不影响其他连接，实现方将其按隐式断开处理。
type Dispatcher interface {
	ToConn(connID, event string, payload interface{})
	ToConns(connIDs []string, event string, payload interface{})
	ToAll(event string, payload interface{})
	CloseConn(connID string)
}

// Chat 是协调核心的门面：校验入站意图，驱动注册表、会话表和消息日志，
// 再把派生事件交给 Dispatcher 扇出。handler 层只跟它打交道。
type Chat struct {
	val      *Validator
	registry *Registry
	sessions *Sessions
	disp     Dispatcher
	mirror   *cache.Mirror

	typingTimeout   time.Duration
	historyPageSize int
}

func NewChat(cfg config.Config, disp Dispatcher, mirror *cache.Mirror) *Chat {
	val := NewValidator(cfg.MaxMessageLength, cfg.MaxUsernameLength, cfg.MaxRoomNameLength, cfg.BannedWords)
	c := &Chat{
		val:             val,
		registry:        NewRegistry(cfg.RoomCleanupDelay, val),
		sessions:        NewSessions(),
		disp:            disp,
		mirror:          mirror,
		typingTimeout:   cfg.TypingTimeout,
		historyPageSize: cfg.HistoryPageSize,
	}
	c.registry.onDelete = func(roomID string) {
		c.mirror.PurgeRoom(roomID)
		c.disp.ToAll(EvtRoomsList, c.registry.List())
	}
	return c
}

// Connect 在连接建立后给新连接发欢迎帧。
func (c *Chat) Connect(connID string) {
	c.disp.ToConn(connID, EvtConnectSuccess, model.ConnectSuccess{ConnectionID: connID})
}

// ListRooms 单播当前房间列表。
func (c *Chat) ListRooms(connID string) {
	c.disp.ToConn(connID, EvtRoomsList, c.registry.List())
}

// RoomList 供 REST 接口复用。
func (c *Chat) RoomList() []model.RoomInfo {
	return c.registry.List()
}

// CreateRoom 显式建房，成功后通知发起者并向所有连接推送新的房间列表。
func (c *Chat) CreateRoom(connID, roomID string) error {
	room, err := c.registry.Create(roomID)
	if err != nil {
		return err
	}
	c.disp.ToConn(connID, EvtRoomCreated, model.RoomCreated{RoomID: room.id})
	c.disp.ToAll(EvtRoomsList, c.registry.List())
	return nil
}

// Join 处理入场。昵称已被房间内在场成员占用时走重连替换：旧连接被顶掉、
// 入场时间保留、不再广播重复的入场系统消息。
func (c *Chat) Join(connID, roomID, username string) error {
	username = strings.TrimSpace(username)
	if err := c.val.Username(username); err != nil {
		return err
	}
	// 目标房间名先行校验，隐式退出之前不允许触碰任何状态
	roomID = strings.TrimSpace(roomID)
	if err := c.val.RoomName(roomID); err != nil {
		return err
	}
	if prev, ok := c.sessions.Get(connID); ok {
		if prev.Room == roomID && strings.EqualFold(prev.Username, username) {
			// 已经在目标房间里，幂等地重发成功响应
			c.sendJoined(connID, prev.Room, prev.Username)
			return nil
		}
		// 单连接单房间：先隐式退出原房间
		c.leave(connID)
	}
	room, err := c.registry.getOrCreate(roomID)
	if err != nil {
		return err
	}
	now := time.Now()

	if oldConn, member, ok := room.replaceConn(username, connID); ok {
		c.sessions.Replace(oldConn, connID, Session{Room: room.id, Username: member.Username, JoinedAt: member.JoinedAt})
		c.mirror.DeleteSession(oldConn)
		c.mirror.SaveSession(connID, room.id, member.Username)
		c.disp.CloseConn(oldConn)
		c.sendJoined(connID, room.id, member.Username)
		c.broadcastRoom(room, EvtUserList, room.userList())
		log.Info().Str("room", room.id).Str("username", member.Username).Str("conn", connID).Msg("member reconnected")
		return nil
	}

	room.addMember(connID, username, now)
	c.sessions.Put(connID, Session{Room: room.id, Username: username, JoinedAt: now})
	c.mirror.SaveSession(connID, room.id, username)
	c.sendJoined(connID, room.id, username)

	msg := room.appendSystem(username+" joined", now)
	c.mirror.AppendMessage(room.id, msg)
	c.broadcastRoom(room, EvtMessage, msg)
	c.broadcastRoom(room, EvtUserList, room.userList())
	c.disp.ToAll(EvtRoomsList, c.registry.List())
	log.Info().Str("room", room.id).Str("username", username).Str("conn", connID).Msg("member joined")
	return nil
}

// sendJoined 给入场者单播成功响应和最新一页历史消息。
func (c *Chat) sendJoined(connID, roomID, username string) {
	c.disp.ToConn(connID, EvtJoinSuccess, model.JoinSuccess{Room: roomID, Username: username})
	if room, ok := c.registry.Get(roomID); ok {
		c.disp.ToConn(connID, EvtMoreMessages, model.MoreMessages{Messages: room.page(0, c.historyPageSize), Offset: 0})
	}
}

// Leave 处理显式退出。未入场时为无副作用的空操作。
func (c *Chat) Leave(connID string) {
	if c.leave(connID) {
		c.disp.ToConn(connID, EvtLeaveSuccess, nil)
	}
}

// Disconnect 由传输层在连接断开时调用，效果等同退出，不回发响应。
func (c *Chat) Disconnect(connID string) {
	c.leave(connID)
}

func (c *Chat) leave(connID string) bool {
	sess, ok := c.sessions.Get(connID)
	if !ok {
		return false
	}
	c.sessions.Delete(connID)
	c.mirror.DeleteSession(connID)
	room, ok := c.registry.Get(sess.Room)
	if !ok {
		return true
	}
	typingChanged := room.stopTyping(connID)
	username, removed, empty := room.removeMember(connID)
	if !removed {
		return true
	}
	now := time.Now()
	msg := room.appendSystem(username+" left", now)
	c.mirror.AppendMessage(room.id, msg)
	c.broadcastRoom(room, EvtMessage, msg)
	c.broadcastRoom(room, EvtUserList, room.userList())
	if typingChanged {
		c.broadcastTyping(room)
	}
	if empty {
		c.registry.scheduleCleanup(room.id)
	}
	c.disp.ToAll(EvtRoomsList, c.registry.List())
	log.Info().Str("room", room.id).Str("username", username).Str("conn", connID).Msg("member left")
	return true
}

// SendMessage 处理用户消息：会话为准，载荷里的 room 仅做交叉校验。
func (c *Chat) SendMessage(connID, roomID, body string) error {
	sess, ok := c.sessions.Get(connID)
	if !ok {
		return invalidInput("join a room first")
	}
	if roomID != "" && strings.TrimSpace(roomID) != sess.Room {
		return invalidInput("not joined to that room")
	}
	if err := c.val.MessageBody(body); err != nil {
		return err
	}
	clean := Sanitize(body)
	if clean == "" {
		return invalidInput("message must not be empty")
	}
	room, ok := c.registry.Get(sess.Room)
	if !ok {
		return notFound("room not found: " + sess.Room)
	}

	// 发消息意味着打字结束
	if room.stopTyping(connID) {
		c.broadcastTyping(room)
	}

	msg := room.appendUser(sess.Username, clean, time.Now())
	metrics.WsMessagesTotal.Inc()
	c.mirror.AppendMessage(room.id, msg)
	c.broadcastRoom(room, EvtMessage, msg)
	c.notifyMentions(room, sess.Username, clean)
	return nil
}

// notifyMentions 给消息里 @ 到的在场成员单发提及通知，不打扰其他人。
func (c *Chat) notifyMentions(room *Room, sender, body string) {
	for _, name := range ExtractMentions(body) {
		if strings.EqualFold(name, sender) {
			continue
		}
		target, ok := room.connOfUsername(name)
		if !ok {
			continue
		}
		c.disp.ToConn(target, EvtMention, model.MentionNotification{FromUser: sender, Message: body})
	}
}

// TypingStart 标记打字中并重置超时；只在打字集合变化时广播。
func (c *Chat) TypingStart(connID string) {
	sess, ok := c.sessions.Get(connID)
	if !ok {
		return
	}
	room, ok := c.registry.Get(sess.Room)
	if !ok {
		return
	}
	changed := room.startTyping(connID, sess.Username, c.typingTimeout, func() {
		c.broadcastTyping(room)
	})
	if changed {
		c.broadcastTyping(room)
	}
}

// TypingStop 显式停止打字。
func (c *Chat) TypingStop(connID string) {
	sess, ok := c.sessions.Get(connID)
	if !ok {
		return
	}
	room, ok := c.registry.Get(sess.Room)
	if !ok {
		return
	}
	if room.stopTyping(connID) {
		c.broadcastTyping(room)
	}
}

// ListUsers 向目标房间广播成员列表。
func (c *Chat) ListUsers(connID, roomID string) error {
	room, ok := c.registry.Get(strings.TrimSpace(roomID))
	if !ok {
		return notFound("room not found: " + roomID)
	}
	c.broadcastRoom(room, EvtUserList, room.userList())
	return nil
}

// Search 在当前房间的日志里做大小写不敏感子串检索，结果只回给发起者。
func (c *Chat) Search(connID, query string) error {
	sess, ok := c.sessions.Get(connID)
	if !ok {
		return invalidInput("join a room first")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return invalidInput("search query must not be empty")
	}
	room, ok := c.registry.Get(sess.Room)
	if !ok {
		return notFound("room not found: " + sess.Room)
	}
	c.disp.ToConn(connID, EvtSearchResults, model.SearchResults{Query: query, Results: room.search(query)})
	return nil
}

// LoadMore 向旧方向翻页，结果只回给发起者。
func (c *Chat) LoadMore(connID string, offset, limit int) error {
	sess, ok := c.sessions.Get(connID)
	if !ok {
		return invalidInput("join a room first")
	}
	room, ok := c.registry.Get(sess.Room)
	if !ok {
		return notFound("room not found: " + sess.Room)
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = c.historyPageSize
	}
	c.disp.ToConn(connID, EvtMoreMessages, model.MoreMessages{Messages: room.page(offset, limit), Offset: offset})
	return nil
}

// React 对消息做表情开关并向全房间广播最新计数表。
func (c *Chat) React(connID string, messageID int64, emoji string) error {
	sess, ok := c.sessions.Get(connID)
	if !ok {
		return invalidInput("join a room first")
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len([]rune(emoji)) > 16 {
		return invalidInput("invalid reaction")
	}
	room, ok := c.registry.Get(sess.Room)
	if !ok {
		return notFound("room not found: " + sess.Room)
	}
	tally, ok := room.toggleReaction(messageID, emoji, sess.Username)
	if !ok {
		return notFound("message not found")
	}
	metrics.ReactionsTotal.Inc()
	c.broadcastRoom(room, EvtReactionUpdate, model.ReactionUpdate{MessageID: messageID, Reactions: tally})
	return nil
}

// Heartbeat 回显客户端时间并附上服务端时间。
func (c *Chat) Heartbeat(connID, clientTime string) {
	c.disp.ToConn(connID, EvtHeartbeatAck, model.HeartbeatAck{
		ClientTime: clientTime,
		ServerTime: time.Now().Format(time.RFC3339Nano),
	})
}

// Stats 汇总协调核心的当前规模，连接数由传输层补充。
func (c *Chat) Stats() model.Stats {
	rooms, members, typing := c.registry.totals()
	return model.Stats{Rooms: rooms, Members: members, Typing: typing}
}

// broadcastRoom 先在房间锁内拷贝收件人，再在锁外投递。
func (c *Chat) broadcastRoom(room *Room, event string, payload interface{}) {
	c.disp.ToConns(room.memberConns(), event, payload)
}

func (c *Chat) broadcastTyping(room *Room) {
	c.disp.ToConns(room.memberConns(), EvtTypingStatus, model.TypingStatus{Users: room.typingUsers()})
}
