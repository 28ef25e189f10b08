package service

import (
	"sync"
	"time"
)

// Session 是一个连接当前绑定的 (房间, 昵称)。一个连接至多一份。
type Session struct {
	Room     string
	Username string
	JoinedAt time.Time
}

// Sessions 维护连接号到会话的全局映射，是“单连接单房间”不变式的归属地。
type Sessions struct {
	mu     sync.RWMutex
	byConn map[string]Session
}

func NewSessions() *Sessions {
	return &Sessions{byConn: make(map[string]Session)}
}

func (s *Sessions) Get(connID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byConn[connID]
	return sess, ok
}

func (s *Sessions) Put(connID string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConn[connID] = sess
}

func (s *Sessions) Delete(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConn, connID)
}

// Replace 原子地把旧连接的会话转移到新连接上，重连路径专用：
// 删除旧映射和写入新映射之间不允许出现两份同名会话。
func (s *Sessions) Replace(oldConnID, newConnID string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConn, oldConnID)
	s.byConn[newConnID] = sess
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byConn)
}
