package model

// Event 是 WebSocket 双向帧的统一信封。
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type ConnectSuccess struct {
	ConnectionID string `json:"connection_id"`
}

type RoomCreated struct {
	RoomID string `json:"room_id"`
}

type JoinSuccess struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type TypingStatus struct {
	Users []string `json:"users"`
}

type ReactionUpdate struct {
	MessageID int64          `json:"message_id"`
	Reactions map[string]int `json:"reactions"`
}

type SearchResults struct {
	Query   string    `json:"query"`
	Results []Message `json:"results"`
}

type MoreMessages struct {
	Messages []Message `json:"messages"`
	Offset   int       `json:"offset"`
}

type MentionNotification struct {
	FromUser string `json:"from_user"`
	Message  string `json:"message"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

type HeartbeatAck struct {
	ClientTime string `json:"client_time"`
	ServerTime string `json:"server_time"`
}
