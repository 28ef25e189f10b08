package ws

import (
	"encoding/json"
	"sync"

	"babachat/internal/metrics"
	"babachat/internal/model"

	"github.com/rs/zerolog/log"
)

// Hub 是全部活跃连接的注册表，同时实现 service.Dispatcher。
// 投递走每连接的带缓冲通道；缓冲写满视为连接已死，就地摘除。
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Client)}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	cur, ok := h.conns[c.id]
	if ok && cur == c {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()
	if ok && cur == c {
		metrics.WsConnections.Dec()
		c.close()
	}
}

func (h *Hub) get(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[connID]
}

// Count 返回当前活跃连接数，供 /stats 复用。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func marshal(event string, payload interface{}) []byte {
	b, err := json.Marshal(model.Event{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal outbound event")
		return nil
	}
	return b
}

// ToConn 单播一帧。
func (h *Hub) ToConn(connID, event string, payload interface{}) {
	b := marshal(event, payload)
	if b == nil {
		return
	}
	if c := h.get(connID); c != nil {
		h.deliver(c, b)
	}
}

// ToConns 按收件人列表扇出，对每个连接尽力而为：一帧只序列化一次，
// 写不进谁的缓冲就摘谁，绝不阻塞或波及其余收件人。
func (h *Hub) ToConns(connIDs []string, event string, payload interface{}) {
	b := marshal(event, payload)
	if b == nil {
		return
	}
	for _, id := range connIDs {
		if c := h.get(id); c != nil {
			h.deliver(c, b)
		}
	}
}

// ToAll 广播给全部活跃连接（与房间无关的事件，如房间列表更新）。
func (h *Hub) ToAll(event string, payload interface{}) {
	b := marshal(event, payload)
	if b == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.deliver(c, b)
	}
}

func (h *Hub) deliver(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		// 发送缓冲满说明对端读不动了，按隐式断开处理
		log.Warn().Str("conn", c.id).Msg("send buffer full, dropping connection")
		h.unregister(c)
	}
}

// CloseConn 强制断开指定连接，重连替换时用来顶掉旧连接。
func (h *Hub) CloseConn(connID string) {
	if c := h.get(connID); c != nil {
		h.unregister(c)
	}
}
