package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"babachat/internal/model"
	"babachat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	readLimit    = 1 << 20 // 1MB
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 是一条 WebSocket 连接：读泵解析入站意图交给协调核心，
// 写泵串行消费出站帧并维持 ping。
type Client struct {
	id   string
	hub  *Hub
	chat *service.Chat
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// close 幂等地终结连接：通知写泵收尾并关掉底层连接，读泵随之退出。
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Serve 升级 HTTP 连接为 WebSocket 并分配连接号。
func Serve(hub *Hub, chat *service.Chat) gin.HandlerFunc {
	return func(g *gin.Context) {
		conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			id:   uuid.NewString(),
			hub:  hub,
			chat: chat,
			conn: conn,
			send: make(chan []byte, sendBuffer),
			done: make(chan struct{}),
		}
		hub.register(client)
		log.Debug().Str("conn", client.id).Str("remote", conn.RemoteAddr().String()).Msg("connection opened")
		chat.Connect(client.id)

		go client.writePump()
		client.readPump()
	}
}

// inbound 是入站帧的统一信封，data 延迟到具体意图再解码。
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinIntent struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type createRoomIntent struct {
	RoomID string `json:"room_id"`
}

type messageIntent struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Msg      string `json:"msg"`
}

type userListIntent struct {
	RoomID string `json:"room_id"`
}

type searchIntent struct {
	Query string `json:"query"`
}

type loadMoreIntent struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type reactIntent struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type heartbeatIntent struct {
	ClientTime string `json:"client_time"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.chat.Disconnect(c.id)
		log.Debug().Str("conn", c.id).Msg("connection closed")
	}()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			c.sendError(service.CodeInvalidInput, "malformed frame")
			continue
		}
		c.dispatch(in)
	}
}

// dispatch 把一帧路由到对应的意图处理；单帧内的 panic 只打掉这一次
// 请求，连接和房间都不受影响。
func (c *Client) dispatch(in inbound) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("conn", c.id).Str("event", in.Event).Interface("panic", r).Msg("intent handler panicked")
			c.sendError(service.CodeInternal, "internal server error")
		}
	}()

	var err error
	switch in.Event {
	case "list_rooms":
		c.chat.ListRooms(c.id)
	case "create_room":
		var p createRoomIntent
		if err = decode(in.Data, &p); err == nil {
			err = c.chat.CreateRoom(c.id, p.RoomID)
		}
	case "join":
		var p joinIntent
		if err = decode(in.Data, &p); err == nil {
			err = c.chat.Join(c.id, p.Room, p.Username)
		}
	case "leave":
		c.chat.Leave(c.id)
	case "message":
		var p messageIntent
		if err = decode(in.Data, &p); err == nil {
			err = c.chat.SendMessage(c.id, p.Room, p.Msg)
		}
	case "typing_start":
		c.chat.TypingStart(c.id)
	case "typing_stop":
		c.chat.TypingStop(c.id)
	case "get_user_list":
		var p userListIntent
		if err = decode(in.Data, &p); err == nil {
			err = c.chat.ListUsers(c.id, p.RoomID)
		}
	case "search":
		var p searchIntent
		if err = decode(in.Data, &p); err == nil {
			err = c.chat.Search(c.id, p.Query)
		}
	case "load_more":
		var p loadMoreIntent
		if err = decode(in.Data, &p); err == nil {
			err = c.chat.LoadMore(c.id, p.Offset, p.Limit)
		}
	case "react":
		var p reactIntent
		if err = decode(in.Data, &p); err == nil {
			err = c.chat.React(c.id, p.MessageID, p.Emoji)
		}
	case "heartbeat":
		var p heartbeatIntent
		if err = decode(in.Data, &p); err == nil {
			c.chat.Heartbeat(c.id, p.ClientTime)
		}
	default:
		c.sendError(service.CodeInvalidInput, "unknown event: "+in.Event)
		return
	}
	if err != nil {
		c.sendError(service.ErrorCode(err), service.ErrorMessage(err))
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return &service.Error{Code: service.CodeInvalidInput, Message: "missing payload"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &service.Error{Code: service.CodeInvalidInput, Message: "malformed payload"}
	}
	return nil
}

// sendError 只告知出错的那条连接，错误永远不进房间广播。
func (c *Client) sendError(code, msg string) {
	c.hub.ToConn(c.id, service.EvtError, model.ErrorPayload{Message: msg, ErrorCode: code})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
