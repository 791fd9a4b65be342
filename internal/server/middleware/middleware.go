package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

type Middleware struct {
	logger         zerolog.Logger
	allowedOrigins map[string]bool
}

// NewMiddleware builds the gateway middleware. With no allowed origins every origin is
// accepted.
func NewMiddleware(logger zerolog.Logger, allowedOrigins ...string) *Middleware {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Middleware{
		logger:         logger.With().Str("component", "http").Logger(),
		allowedOrigins: origins,
	}
}

func (m *Middleware) SetupMiddleware(router *gin.Engine) {
	router.Use(RequestID())
	router.Use(m.CORS())
	router.Use(m.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeaders())
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (m *Middleware) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(m.allowedOrigins) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case m.allowedOrigins[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// RequestLogger routes gin's access log through zerolog.
func (m *Middleware) RequestLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		event := m.logger.Info()
		if param.StatusCode >= http.StatusInternalServerError {
			event = m.logger.Error()
		}
		if id, ok := param.Keys[requestIDKey].(string); ok {
			event = event.Str("request_id", id)
		}
		event.
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status", param.StatusCode).
			Dur("latency", param.Latency).
			Str("client_ip", param.ClientIP).
			Str("user_agent", param.Request.UserAgent()).
			Msg("HTTP Request")
		return ""
	})
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}
