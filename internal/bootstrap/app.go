package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	httpHandler "collaborative-pad/internal/handler/http"
	wsHandler "collaborative-pad/internal/handler/websocket"
	"collaborative-pad/internal/hub"
	"collaborative-pad/internal/metrics"
	"collaborative-pad/internal/service"
)

// Config holds everything loaded from the environment.
type Config struct {
	ServerPort        string
	AppEnv            string // development/production
	LogLevel          string
	CORSAllowedOrigin string

	SweepInterval     time.Duration
	RoomIdleThreshold time.Duration

	WSMaxMessageSize int64
	WSRateBurst      int
	WSRateRefill     time.Duration
}

// LoadConfig reads configuration from the environment, after loading a
// local .env file if one exists. Every field has a working default; the
// process boots with no environment at all.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // .env is optional, env vars win

	cfg := &Config{
		ServerPort:        os.Getenv("PORT"),
		AppEnv:            os.Getenv("APP_ENV"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		RoomIdleThreshold: getEnvDuration("ROOM_IDLE_THRESHOLD", 10*time.Minute),
		WSMaxMessageSize:  getEnvInt64("WS_MAX_MESSAGE_SIZE", 64*1024),
		WSRateBurst:       getEnvInt("WS_RATE_BURST", 50),
		WSRateRefill:      getEnvDuration("WS_RATE_REFILL", time.Second),
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "3000"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	if cfg.SweepInterval <= 0 || cfg.RoomIdleThreshold <= 0 {
		return nil, errors.New("sweep interval and idle threshold must be positive")
	}

	return cfg, nil
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logrus.Warnf("Invalid duration in %s: %q, using default %s", key, v, def)
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// App wires the registry, hub, handlers, and HTTP server together.
type App struct {
	Config     *Config
	Log        *logrus.Logger
	Registry   *service.RoomRegistry
	Hub        *hub.Hub
	HTTPServer *http.Server

	sweeperCancel context.CancelFunc
}

// NewApp initializes every component from configuration.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	log.Info("Configuration loaded")

	registry := service.NewRoomRegistry()
	hubInstance := hub.NewHub(registry, hub.Options{
		MaxMessageSize: cfg.WSMaxMessageSize,
		RateBurst:      cfg.WSRateBurst,
		RateRefill:     cfg.WSRateRefill,
	})

	router := NewRouter(cfg, registry, hubInstance)

	app := &App{
		Config:   cfg,
		Log:      log,
		Registry: registry,
		Hub:      hubInstance,
		HTTPServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	log.Info("Application assembled")
	return app, nil
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg *Config, registry *service.RoomRegistry, hubInstance *hub.Hub) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logrus.StandardLogger()))
	router.Use(CORS(cfg.CORSAllowedOrigin))

	api := httpHandler.NewHandler(registry, hubInstance)
	ws := wsHandler.NewHandler(hubInstance, cfg.CORSAllowedOrigin)

	router.GET("/", api.Health)
	router.GET("/ping", api.Ping)
	router.GET("/stats", api.Stats)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", ws.HandleConnection)

	return router
}

// Start launches the sweeper and the HTTP server.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.sweeperCancel = cancel
	go a.Registry.RunSweeper(ctx, a.Config.SweepInterval, a.Config.RoomIdleThreshold)

	go func() {
		a.Log.Infof("HTTP server listening on %s", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
}

// Shutdown stops the sweeper and drains the HTTP server.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.sweeperCancel != nil {
		a.sweeperCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully")
	}
}

// RequestLogger logs every HTTP request with latency and status.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"status_code": c.Writer.Status(),
			"latency_ms":  time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Server error")
		case c.Writer.Status() >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}

// CORS allows the configured browser origin to reach the HTTP endpoints.
// An empty origin allows any (development).
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowedOrigin
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
