package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"babachat/internal/config"
	"babachat/internal/metrics"
	"babachat/internal/mw"
	"babachat/internal/service"
	"babachat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, chat *service.Chat, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的请求速率
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/stats", func(c *gin.Context) {
		stats := chat.Stats()
		stats.Connections = hub.Count()
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": stats})
	})

	api := r.Group("/api/v1")
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": chat.RoomList()})
	})

	r.GET("/ws", ws.Serve(hub, chat))

	// 前端静态文件：没有匹配到任何路由的请求回退到 SPA 入口
	webDir := filepath.Join(".", "web")
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Status(http.StatusNotFound)
			return
		}
		rel := strings.TrimPrefix(filepath.Clean(c.Request.URL.Path), "/")
		if rel == "" || rel == "." {
			c.File(filepath.Join(webDir, "index.html"))
			return
		}
		target := filepath.Join(webDir, rel)
		if fi, err := os.Stat(target); err == nil && !fi.IsDir() {
			c.File(target)
			return
		}
		if strings.Contains(rel, ".") {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(filepath.Join(webDir, "index.html"))
	})
	return r
}
