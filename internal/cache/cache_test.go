package cache

import (
	"testing"
	"time"

	"babachat/internal/model"
)

func TestConnect_EmptyAddr(t *testing.T) {
	if m := Connect(""); m != nil {
		t.Errorf("Connect(\"\") = %v, want nil", m)
	}
}

func TestMirror_NilReceiverIsSafe(t *testing.T) {
	var m *Mirror
	m.AppendMessage("general", model.Message{ID: 1, Content: "hi", Timestamp: time.Now()})
	m.SaveSession("c1", "general", "alice")
	m.DeleteSession("c1")
	m.PurgeRoom("general")
	m.Close()
}

func TestKeyFormats(t *testing.T) {
	if got := historyKey("general"); got != "chat:history:general" {
		t.Errorf("historyKey = %q, want chat:history:general", got)
	}
	if got := sessionKey("abc"); got != "chat:session:abc" {
		t.Errorf("sessionKey = %q, want chat:session:abc", got)
	}
}
