package service

import (
	"sort"
	"strings"
	"sync"
	"time"

	"babachat/internal/metrics"
	"babachat/internal/model"

	"github.com/rs/zerolog/log"
)

// Member 是连接在某个房间内的在场身份。
type Member struct {
	ConnID   string
	Username string
	JoinedAt time.Time
}

// Room 持有一个房间的全部可变状态：成员、消息日志、打字集合。
// 四者的全部修改都在 mu 下串行，广播前先在锁内拷贝收件人列表。
type Room struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	members map[string]*Member // conn id -> member
	typing  map[string]*typingEntry
	log     messageLog
}

type typingEntry struct {
	username string
	timer    *time.Timer
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		id:        id,
		createdAt: now,
		members:   make(map[string]*Member),
		typing:    make(map[string]*typingEntry),
		log:       newMessageLog(),
	}
}

func (r *Room) ID() string { return r.id }

// findByUsername 大小写不敏感地查找在场成员，调用方需持有 r.mu。
func (r *Room) findByUsername(username string) *Member {
	lower := strings.ToLower(username)
	for _, m := range r.members {
		if strings.ToLower(m.Username) == lower {
			return m
		}
	}
	return nil
}

func (r *Room) addMember(connID, username string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[connID] = &Member{ConnID: connID, Username: username, JoinedAt: now}
}

// replaceConn 把既有成员的连接号换成新连接，入场时间与昵称写法保持
// 不变。返回被替换的旧连接号和更新后的成员快照；没有同名成员时 ok 为假。
func (r *Room) replaceConn(username, newConnID string) (string, Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.findByUsername(username)
	if m == nil {
		return "", Member{}, false
	}
	old := m.ConnID
	delete(r.members, old)
	m.ConnID = newConnID
	r.members[newConnID] = m
	if e, ok := r.typing[old]; ok {
		e.timer.Stop()
		delete(r.typing, old)
	}
	return old, *m, true
}

// connOfUsername 返回在场同名成员当前绑定的连接号。
func (r *Room) connOfUsername(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.findByUsername(username)
	if m == nil {
		return "", false
	}
	return m.ConnID, true
}

// removeMember 摘除成员并清掉其打字状态，返回成员名和房间是否因此变空。
func (r *Room) removeMember(connID string) (username string, removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	if !ok {
		return "", false, len(r.members) == 0
	}
	delete(r.members, connID)
	if e, ok := r.typing[connID]; ok {
		e.timer.Stop()
		delete(r.typing, connID)
	}
	return m.Username, true, len(r.members) == 0
}

func (r *Room) memberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// memberConns 在锁内拷贝当前成员的连接号，真正的投递发生在锁外。
func (r *Room) memberConns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// userList 按入场时间排序的在场成员快照。
func (r *Room) userList() []model.UserInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.UserInfo, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, model.UserInfo{ConnectionID: m.ConnID, Username: m.Username, JoinedAt: m.JoinedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Username < out[j].Username
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// startTyping 标记成员正在打字并重置其超时定时器。只有打字集合的成员
// 构成真正变化时才返回 true，单纯的定时器续期不触发广播。
// expired 在超时自动清除生效后于锁外被调用。
func (r *Room) startTyping(connID, username string, timeout time.Duration, expired func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[connID]; !ok {
		return false
	}
	if e, ok := r.typing[connID]; ok {
		e.timer.Stop()
	}
	entry := &typingEntry{username: username}
	entry.timer = time.AfterFunc(timeout, func() {
		// 到点的定时器只是建议：重新校验状态后才动手
		if r.expireTyping(connID, entry) {
			expired()
		}
	})
	_, existed := r.typing[connID]
	r.typing[connID] = entry
	return !existed
}

// expireTyping 定时器回调：仅当该连接的当前打字条目仍是本次计时的那个
// 时才清除（期间成员可能已续期、离开或换了连接）。
func (r *Room) expireTyping(connID string, entry *typingEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.typing[connID]
	if !ok || cur != entry {
		return false
	}
	delete(r.typing, connID)
	return true
}

// stopTyping 显式停止打字，集合变化时返回 true。
func (r *Room) stopTyping(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.typing[connID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.typing, connID)
	return true
}

func (r *Room) typingUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.typing))
	for _, e := range r.typing {
		out = append(out, e.username)
	}
	sort.Strings(out)
	return out
}

func (r *Room) appendUser(username, body string, now time.Time) model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.appendUser(username, body, now)
}

func (r *Room) appendSystem(body string, now time.Time) model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.appendSystem(body, now)
}

func (r *Room) page(offset, limit int) []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.page(offset, limit)
}

func (r *Room) search(query string) []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.search(query)
}

func (r *Room) toggleReaction(id int64, emoji, actor string) (map[string]int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.toggleReaction(id, emoji, actor)
}

// Registry 管理全部房间的生死：创建、查找、延迟删除。
// 锁序约定：先 Registry 后 Room，严禁反向嵌套。
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	cleanups map[string]*time.Timer
	grace    time.Duration
	val      *Validator
	// onDelete 在房间真正删除后于 Registry 锁外被调用
	onDelete func(roomID string)
}

func NewRegistry(grace time.Duration, val *Validator) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		cleanups: make(map[string]*time.Timer),
		grace:    grace,
		val:      val,
	}
}

// Create 显式创建空房间。同名房间仍有人、或存在且未进入删除等待时报
// duplicate_room；正处于删除等待的空房间会被复用并取消删除。
func (reg *Registry) Create(id string) (*Room, error) {
	id = strings.TrimSpace(id)
	if err := reg.val.RoomName(id); err != nil {
		return nil, err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[id]; ok {
		t, pending := reg.cleanups[id]
		if room.memberCount() > 0 || !pending {
			return nil, duplicateRoom("room already exists: " + id)
		}
		t.Stop()
		delete(reg.cleanups, id)
		return room, nil
	}
	room := newRoom(id, time.Now())
	reg.rooms[id] = room
	metrics.RoomsActive.Inc()
	log.Info().Str("room", id).Msg("room created")
	return room, nil
}

// getOrCreate 供入场流程使用：房间不存在则透明创建，存在且挂着删除
// 定时器则取消，保证宽限期内回流的成员能接上原来的消息日志。
func (reg *Registry) getOrCreate(id string) (*Room, error) {
	id = strings.TrimSpace(id)
	if err := reg.val.RoomName(id); err != nil {
		return nil, err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if t, ok := reg.cleanups[id]; ok {
		t.Stop()
		delete(reg.cleanups, id)
		log.Debug().Str("room", id).Msg("room cleanup cancelled")
	}
	if room, ok := reg.rooms[id]; ok {
		return room, nil
	}
	room := newRoom(id, time.Now())
	reg.rooms[id] = room
	metrics.RoomsActive.Inc()
	log.Info().Str("room", id).Msg("room created")
	return room, nil
}

func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// List 按创建时间升序返回所有房间。
func (reg *Registry) List() []model.RoomInfo {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	out := make([]model.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, model.RoomInfo{
			ID:          r.id,
			Name:        r.id,
			MemberCount: r.memberCount(),
			CreatedAt:   r.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// scheduleCleanup 在房间成员数归零时启动宽限期删除。到点后重新校验
// 房间仍存在且仍为空才删除；期间有人回流则定时器已被取消。
func (reg *Registry) scheduleCleanup(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[id]; !ok {
		return
	}
	if t, ok := reg.cleanups[id]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(reg.grace, func() {
		reg.expireCleanup(id, timer)
	})
	reg.cleanups[id] = timer
	log.Debug().Str("room", id).Dur("grace", reg.grace).Msg("room cleanup scheduled")
}

func (reg *Registry) expireCleanup(id string, timer *time.Timer) {
	reg.mu.Lock()
	cur, ok := reg.cleanups[id]
	if !ok || cur != timer {
		reg.mu.Unlock()
		return
	}
	delete(reg.cleanups, id)
	room, ok := reg.rooms[id]
	if !ok || room.memberCount() > 0 {
		reg.mu.Unlock()
		return
	}
	delete(reg.rooms, id)
	reg.mu.Unlock()

	metrics.RoomsActive.Dec()
	log.Info().Str("room", id).Msg("empty room deleted")
	if reg.onDelete != nil {
		reg.onDelete(id)
	}
}

// totals 返回 (房间数, 在场成员总数, 打字人数)，供 /stats 使用。
func (reg *Registry) totals() (int, int, int) {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	members, typing := 0, 0
	for _, r := range rooms {
		r.mu.Lock()
		members += len(r.members)
		typing += len(r.typing)
		r.mu.Unlock()
	}
	return len(rooms), members, typing
}
