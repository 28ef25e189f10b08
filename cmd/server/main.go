package main

import (
	"babachat/internal/cache"
	"babachat/internal/config"
	clog "babachat/internal/log"
	"babachat/internal/server"
	"babachat/internal/service"
	"babachat/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、接上 Redis 镜像并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	mirror := cache.Connect(cfg.RedisAddr)
	defer mirror.Close()

	hub := ws.NewHub()
	chat := service.NewChat(cfg, hub, mirror)

	r := server.SetupRouter(cfg, chat, hub)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
