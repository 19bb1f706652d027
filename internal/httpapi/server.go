// Package httpapi is the administrative HTTP surface over an
// InstanceManager (§11 items 5-6): a thin gin.Engine wrapping Call/Cast/
// State/Stats, plus a gorilla/websocket live event stream bridged from
// dispatch/bus, mirroring the teacher lineage's dashboard/app-server
// wiring style (gin.New + gin.Recovery, grouped routes, JSON responses,
// a connection-per-client websocket upgrade).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	jido "github.com/agentjido/jido-sub001"
	"github.com/agentjido/jido-sub001/dispatch/bus"
	"github.com/agentjido/jido-sub001/internal/logging"
)

// Server is the gin-backed control API for one InstanceManager.
type Server struct {
	router  *gin.Engine
	manager *jido.InstanceManager
	bus     *bus.Bus
}

// NewServer builds a Server. b may be nil, in which case /agents/:key/stream
// responds 503 rather than upgrading a connection with nothing to feed it.
func NewServer(manager *jido.InstanceManager, b *bus.Bus) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{router: r, manager: manager, bus: b}
	s.registerRoutes()
	return s
}

// Engine returns the underlying gin.Engine, for tests and for embedding
// into a larger router.
func (s *Server) Engine() *gin.Engine { return s.router }

// ListenAndServe starts the HTTP server on addr, shutting down gracefully
// (5s drain) when ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Default().Warn("httpapi shutdown error", logging.FieldError, err)
		}
	}()

	logging.Default().Info("httpapi listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	agents := s.router.Group("/agents")
	agents.GET("", s.listStats)
	agents.POST("/:key/call", s.call)
	agents.POST("/:key/cast", s.cast)
	agents.GET("/:key/state", s.state)
	agents.GET("/:key/stream", s.stream)
	agents.DELETE("/:key", s.stop)
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}

func serverError(c *gin.Context, err error) {
	logging.FromContext(c.Request.Context()).Error("httpapi internal error", logging.FieldError, err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}
