// Package server exposes the messaging subsystem over HTTP: a small REST
// surface for history and ingestion, and the websocket endpoint carrying
// the live event frames.
package server

import (
	"log/slog"
	"net/http"

	"opschat/auth"
	"opschat/contract"
	"opschat/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type Server struct {
	log            *slog.Logger
	service        services.IChatService
	registry       contract.IRegistry
	tokens         *auth.TokenManager
	upgrader       websocket.Upgrader
	connBufferSize int
}

type Options struct {
	AllowedOrigins []string
	// ConnBufferSize bounds the per-connection outbound queue.
	ConnBufferSize int
	// RequestsPerSecond / Burst shape the per-IP limiter on the REST group.
	RequestsPerSecond float64
	Burst             int
}

func New(log *slog.Logger, service services.IChatService, registry contract.IRegistry,
	tokens *auth.TokenManager, opts Options) *Server {
	return &Server{
		log:      log,
		service:  service,
		registry: registry,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		connBufferSize: opts.ConnBufferSize,
	}
}

// Router wires the gin engine. Everything except the health probe sits
// behind token authentication; the REST group additionally sits behind the
// per-IP limiter.
func (s *Server) Router(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := r.Group("/", Authenticated(s.tokens))
	authed.GET("/ws", s.handleWS)

	api := authed.Group("/", IPRateLimit(rate.Limit(opts.RequestsPerSecond), opts.Burst))
	api.GET("/messages/:counterpartId", s.getMessages)
	api.POST("/messages/:counterpartId", s.postMessage)
	api.GET("/presence/:userId", s.getPresence)

	return r
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}
