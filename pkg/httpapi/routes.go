package httpapi

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.GET("/stats", s.handleStats)
	v1.GET("/sessions", s.handleSessions)

	r.GET("/ws", s.handleWebSocket)
	r.GET("/ws/:role", s.handleWebSocket)
	return r
}

// requestLogger logs each API request through the relay logger. WebSocket
// requests are logged by the session instead.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if strings.HasPrefix(c.FullPath(), "/ws") {
			return
		}
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.ClientIP())
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.relay.Stats().ShuttingDown {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	body := gin.H{"relay": s.relay.Stats()}
	if s.grpc != nil {
		body["grpc"] = s.grpc.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSessions(c *gin.Context) {
	var role types.Role
	if raw := c.Query("role"); raw != "" {
		parsed, err := types.ParseRole(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role = parsed
	}

	sessions := s.relay.Sessions(role)
	c.JSON(http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
}

// handleWebSocket joins one WebSocket client to the relay. The role comes
// from the path, then the role query parameter, then the first frame.
func (s *Server) handleWebSocket(c *gin.Context) {
	raw := c.Param("role")
	if raw == "" {
		raw = c.Query("role")
	}

	var role types.Role
	if raw != "" {
		parsed, err := types.ParseRole(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role = parsed
	}
	if s.relay.Stats().ShuttingDown {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "relay shutting down"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.cfg.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.log.Warn("websocket upgrade failed", "error", err, "remote_addr", c.ClientIP())
		return
	}

	t := newWSTransport(conn, wsOptions{
		WriteTimeout: s.cfg.WriteTimeout,
		PongWait:     s.cfg.PongWait,
		ReadLimit:    config.DefaultMaxMessageSize,
		Logger:       s.log,
	})
	err = s.relay.Accept(c.Request.Context(), t, role)
	t.shutdown(err)
}

// isOriginAllowed accepts requests without an Origin header, origins listed
// in allowed (full origin or bare host), and same-host origins when allowed
// is empty.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(origin, a) || strings.EqualFold(originHost, a) {
				return true
			}
		}
		return false
	}

	return strings.EqualFold(originHost, hostOnly(r.Host))
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(host, "[]")
	}
	return strings.Trim(hostport, "[]")
}
