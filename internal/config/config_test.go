package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("APP_PORT")
	os.Unsetenv("APP_ENV")
	os.Unsetenv("REDIS_ADDR")
	os.Unsetenv("MAX_MESSAGE_LENGTH")
	os.Unsetenv("MAX_USERNAME_LENGTH")
	os.Unsetenv("MAX_ROOM_NAME_LENGTH")
	os.Unsetenv("BANNED_WORDS")
	os.Unsetenv("HISTORY_PAGE_SIZE")
	os.Unsetenv("ROOM_CLEANUP_DELAY_SECONDS")
	os.Unsetenv("TYPING_TIMEOUT_SECONDS")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Load() Port = %v, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Load() Env = %v, want dev", cfg.Env)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("Load() RedisAddr = %v, want empty", cfg.RedisAddr)
	}
	if cfg.MaxMessageLength != 500 {
		t.Errorf("Load() MaxMessageLength = %v, want 500", cfg.MaxMessageLength)
	}
	if cfg.MaxUsernameLength != 20 {
		t.Errorf("Load() MaxUsernameLength = %v, want 20", cfg.MaxUsernameLength)
	}
	if cfg.MaxRoomNameLength != 30 {
		t.Errorf("Load() MaxRoomNameLength = %v, want 30", cfg.MaxRoomNameLength)
	}
	if len(cfg.BannedWords) != 3 {
		t.Errorf("Load() BannedWords = %v, want 3 entries", cfg.BannedWords)
	}
	if cfg.RoomCleanupDelay != 5*time.Second {
		t.Errorf("Load() RoomCleanupDelay = %v, want 5s", cfg.RoomCleanupDelay)
	}
	if cfg.TypingTimeout != 3*time.Second {
		t.Errorf("Load() TypingTimeout = %v, want 3s", cfg.TypingTimeout)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	os.Setenv("APP_PORT", "9090")
	os.Setenv("APP_ENV", "prod")
	os.Setenv("REDIS_ADDR", "localhost:6379")
	os.Setenv("MAX_MESSAGE_LENGTH", "1000")
	os.Setenv("BANNED_WORDS", "spam, ads ,scam")
	os.Setenv("ROOM_CLEANUP_DELAY_SECONDS", "30")
	os.Setenv("TYPING_TIMEOUT_SECONDS", "10")
	defer func() {
		os.Unsetenv("APP_PORT")
		os.Unsetenv("APP_ENV")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("MAX_MESSAGE_LENGTH")
		os.Unsetenv("BANNED_WORDS")
		os.Unsetenv("ROOM_CLEANUP_DELAY_SECONDS")
		os.Unsetenv("TYPING_TIMEOUT_SECONDS")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Load() Port = %v, want 9090", cfg.Port)
	}
	if cfg.Env != "prod" {
		t.Errorf("Load() Env = %v, want prod", cfg.Env)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Load() RedisAddr = %v, want localhost:6379", cfg.RedisAddr)
	}
	if cfg.MaxMessageLength != 1000 {
		t.Errorf("Load() MaxMessageLength = %v, want 1000", cfg.MaxMessageLength)
	}
	want := []string{"spam", "ads", "scam"}
	if len(cfg.BannedWords) != len(want) {
		t.Fatalf("Load() BannedWords = %v, want %v", cfg.BannedWords, want)
	}
	for i, w := range want {
		if cfg.BannedWords[i] != w {
			t.Errorf("Load() BannedWords[%d] = %v, want %v", i, cfg.BannedWords[i], w)
		}
	}
	if cfg.RoomCleanupDelay != 30*time.Second {
		t.Errorf("Load() RoomCleanupDelay = %v, want 30s", cfg.RoomCleanupDelay)
	}
	if cfg.TypingTimeout != 10*time.Second {
		t.Errorf("Load() TypingTimeout = %v, want 10s", cfg.TypingTimeout)
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	os.Setenv("MAX_MESSAGE_LENGTH", "not-a-number")
	os.Setenv("TYPING_TIMEOUT_SECONDS", "-1")
	defer func() {
		os.Unsetenv("MAX_MESSAGE_LENGTH")
		os.Unsetenv("TYPING_TIMEOUT_SECONDS")
	}()

	cfg := Load()

	if cfg.MaxMessageLength != 500 {
		t.Errorf("Load() MaxMessageLength = %v, want default 500", cfg.MaxMessageLength)
	}
	if cfg.TypingTimeout != 3*time.Second {
		t.Errorf("Load() TypingTimeout = %v, want default 3s", cfg.TypingTimeout)
	}
}
