package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wanx-studio/app/config"
	"wanx-studio/app/logger"

	"github.com/gin-gonic/gin"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:    config.ServerConfig{Port: "0"},
		DashScope: config.DashScopeConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		Assets:    config.AssetsConfig{Root: t.TempDir()},
		Download:  config.DownloadConfig{Timeout: time.Second},
		Sync: config.SyncConfig{
			RefreshSpec:    "@every 1h",
			StatusCacheTTL: time.Minute,
			ListCacheTTL:   time.Minute,
		},
	}
}

func TestServer_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)

	dir := filepath.Join(cfg.Assets.Root, "t1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image_1.png"), []byte("png"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	srv := New(cfg, logger.NewNop())
	defer srv.Shutdown(context.Background())

	cases := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/api/models/text2image", http.StatusOK},
		{"/api/models/image-edit", http.StatusOK},
		{"/api/tasks", http.StatusOK},
		{"/api/tasks/t1", http.StatusNotFound},
		{"/assets/t1/image_1.png", http.StatusOK},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, c.path, nil))
		if w.Code != c.want {
			t.Errorf("GET %s: got %d, want %d", c.path, w.Code, c.want)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("GET %s: missing request id", c.path)
		}
	}
}

func TestServer_StatusWithoutAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(testConfig(t), logger.NewNop())
	defer srv.Shutdown(context.Background())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/text2image/tasks/t1/status", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without api key, got %d", w.Code)
	}
}
