package report

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
)

// APIKeyHeader - заголовок с ключом доступа к /stats.
const APIKeyHeader = "X-API-Key"

// Server - HTTP-поверхность отчётов.
type Server struct {
	engine *gin.Engine
	cfg    config.Provider
	logger *slog.Logger
}

// NewServer создаёт gin-движок со всеми маршрутами.
func NewServer(stats *Service, cfg config.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	h := &handler{stats: stats, logger: logger}
	r.GET("/health", h.health)

	protected := r.Group("/stats", requireAPIKey(cfg))
	{
		protected.GET("", h.getStats)
		protected.POST("/reset", h.resetStats)
	}

	return &Server{engine: r, cfg: cfg, logger: logger}
}

// Handler возвращает http.Handler для тестов и встраивания.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run слушает addr до отмены ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if config.String(s.cfg, "report_api_key", "") == "" {
		s.logger.Warn("report_api_key is not set, /stats is served to loopback clients only", "addr", addr)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("report server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type handler struct {
	stats  *Service
	logger *slog.Logger
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) getStats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) resetStats(c *gin.Context) {
	h.stats.Reset()
	h.logger.Info("runtime statistics reset over http", "client", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// requireAPIKey читает report_api_key на каждый запрос. Без ключа доступ
// есть только с loopback-адреса.
func requireAPIKey(cfg config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		want := config.String(cfg, "report_api_key", "")
		if want == "" {
			if !isLoopback(c.Request.RemoteAddr) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "report_api_key is not set; only local access is allowed"})
				return
			}
			c.Next()
			return
		}
		got := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

// isLoopback смотрит на адрес соединения, а не на X-Forwarded-For.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
