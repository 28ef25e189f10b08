package model

import "time"

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageSystem MessageType = "system"
)

// Message 是房间消息日志里的一条记录。除 Reactions 外创建后不可变。
type Message struct {
	ID        int64          `json:"id"`
	Type      MessageType    `json:"type"`
	Content   string         `json:"content"`
	Username  string         `json:"username,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Reactions map[string]int `json:"reactions,omitempty"`
}

// RoomInfo 是对外输出的房间数据。
type RoomInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserInfo 是对外输出的房间成员数据。
type UserInfo struct {
	ConnectionID string    `json:"connection_id"`
	Username     string    `json:"username"`
	JoinedAt     time.Time `json:"joined_at"`
}

type Stats struct {
	Rooms       int `json:"total_rooms"`
	Members     int `json:"total_users"`
	Typing      int `json:"typing_users"`
	Connections int `json:"total_connections"`
}
