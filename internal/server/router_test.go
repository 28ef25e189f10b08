package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"babachat/internal/config"
	"babachat/internal/service"
	"babachat/internal/ws"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func newTestRouter() (*gin.Engine, *service.Chat) {
	cfg := config.Config{
		Env:               "dev",
		MaxMessageLength:  500,
		MaxUsernameLength: 20,
		MaxRoomNameLength: 30,
		HistoryPageSize:   50,
		RoomCleanupDelay:  time.Second,
		TypingTimeout:     time.Second,
	}
	hub := ws.NewHub()
	chat := service.NewChat(cfg, hub, nil)
	return SetupRouter(cfg, chat, hub), chat
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestRoomsAPI(t *testing.T) {
	r, chat := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/rooms status = %d, want 200", w.Code)
	}
	var empty struct {
		Rooms []json.RawMessage `json:"rooms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if empty.Rooms == nil || len(empty.Rooms) != 0 {
		t.Errorf("rooms = %s, want empty array", w.Body.String())
	}

	if err := chat.CreateRoom("test-conn", "general"); err != nil {
		t.Fatalf("CreateRoom error = %v", err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil))
	var got struct {
		Rooms []struct {
			ID          string `json:"id"`
			MemberCount int    `json:"member_count"`
		} `json:"rooms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(got.Rooms) != 1 || got.Rooms[0].ID != "general" || got.Rooms[0].MemberCount != 0 {
		t.Errorf("rooms = %s, want the single empty room 'general'", w.Body.String())
	}
}

func TestStats(t *testing.T) {
	r, chat := newTestRouter()
	if err := chat.Join("a1", "general", "alice"); err != nil {
		t.Fatalf("Join error = %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /stats status = %d, want 200", w.Code)
	}
	var body struct {
		Status string `json:"status"`
		Data   struct {
			Rooms       int `json:"total_rooms"`
			Members     int `json:"total_users"`
			Connections int `json:"total_connections"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "success" {
		t.Errorf("status = %q, want success", body.Status)
	}
	if body.Data.Rooms != 1 || body.Data.Members != 1 {
		t.Errorf("stats = %+v, want 1 room and 1 member", body.Data)
	}
	// a1 不是真实 WebSocket 连接
	if body.Data.Connections != 0 {
		t.Errorf("total_connections = %d, want 0", body.Data.Connections)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Error("metrics body is empty")
	}
}

func TestNoRouteFallback(t *testing.T) {
	r, _ := newTestRouter()

	// 带扩展名的未知文件不回退到入口页
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /missing.js status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/anything", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("POST /anything status = %d, want 404", w.Code)
	}
}
