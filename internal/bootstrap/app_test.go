package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-pad/internal/hub"
	"collaborative-pad/internal/service"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.ServerPort)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.CORSAllowedOrigin)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.RoomIdleThreshold)
	assert.Equal(t, int64(64*1024), cfg.WSMaxMessageSize)
	assert.Equal(t, 50, cfg.WSRateBurst)
	assert.Equal(t, time.Second, cfg.WSRateRefill)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://pad.example.com")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("ROOM_IDLE_THRESHOLD", "2m")
	t.Setenv("WS_RATE_BURST", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://pad.example.com", cfg.CORSAllowedOrigin)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 2*time.Minute, cfg.RoomIdleThreshold)
	assert.Equal(t, 10, cfg.WSRateBurst)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LOG_LEVEL", "shouting")
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")
	t.Setenv("WS_RATE_BURST", "-5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 50, cfg.WSRateBurst)
}

func newTestRouter(t *testing.T, cfg *Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := service.NewRoomRegistry()
	h := hub.NewHub(registry, hub.Options{})
	return NewRouter(cfg, registry, h)
}

func TestRouter_Endpoints(t *testing.T) {
	router := newTestRouter(t, &Config{AppEnv: "development"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Realtime collab backend is running", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Rooms       int `json:"rooms"`
		Connections int `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Rooms)
	assert.Equal(t, 0, stats.Connections)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORSHeaders(t *testing.T) {
	router := newTestRouter(t, &Config{AppEnv: "development", CORSAllowedOrigin: "https://pad.example.com"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "https://pad.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code, "preflight short-circuits")
}
