package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              string
	Env               string
	RedisAddr         string
	MaxMessageLength  int
	MaxUsernameLength int
	MaxRoomNameLength int
	BannedWords       []string
	HistoryPageSize   int
	RoomCleanupDelay  time.Duration
	TypingTimeout     time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 一次性读取全部环境变量配置，运行期间不做热更新。
func Load() Config {
	banned := strings.Split(getenv("BANNED_WORDS", "스팸,욕설예시,광고"), ",")
	out := banned[:0]
	for _, w := range banned {
		w = strings.TrimSpace(w)
		if w != "" {
			out = append(out, w)
		}
	}
	return Config{
		Port:              getenv("APP_PORT", "8080"),
		Env:               getenv("APP_ENV", "dev"),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		MaxMessageLength:  getenvInt("MAX_MESSAGE_LENGTH", 500),
		MaxUsernameLength: getenvInt("MAX_USERNAME_LENGTH", 20),
		MaxRoomNameLength: getenvInt("MAX_ROOM_NAME_LENGTH", 30),
		BannedWords:       out,
		HistoryPageSize:   getenvInt("HISTORY_PAGE_SIZE", 50),
		RoomCleanupDelay:  time.Duration(getenvInt("ROOM_CLEANUP_DELAY_SECONDS", 5)) * time.Second,
		TypingTimeout:     time.Duration(getenvInt("TYPING_TIMEOUT_SECONDS", 3)) * time.Second,
	}
}
