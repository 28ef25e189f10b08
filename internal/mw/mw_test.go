package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(rate.Every(time.Hour), 3))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "1.2.3.4:555"
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "1.2.3.4:555"
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("over-burst status = %d, want 429", w.Code)
	}

	// 别的 IP 不受影响
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "9.9.9.9:555"
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other-ip status = %d, want 200", w.Code)
	}
}

func TestLimiter_GCEvictsIdle(t *testing.T) {
	rl := NewLimiter(rate.Every(time.Second), 1, time.Millisecond)
	defer rl.Stop()
	rl.get("k1")

	rl.mu.Lock()
	rl.m["k1"].ts = time.Now().Add(-time.Minute)
	rl.mu.Unlock()

	// 直接调用淘汰逻辑等价的一轮扫描
	now := time.Now()
	rl.mu.Lock()
	for k, v := range rl.m {
		if now.Sub(v.ts) > rl.ttl {
			delete(rl.m, k)
		}
	}
	remaining := len(rl.m)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("idle limiter not evicted, %d entries remain", remaining)
	}
}

func TestCORS_DevAllowsAnyOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS("dev"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://elsewhere.test")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://elsewhere.test" {
		t.Errorf("Allow-Origin = %q, want the request origin", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("dev"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://elsewhere.test")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight missing Allow-Methods header")
	}
}

func TestCORS_ProdRejectsForeignOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS("prod"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Host = "chat.example.com"
	req.Header.Set("Origin", "http://evil.test")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for foreign origin in prod, want empty", got)
	}
}
