package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	jido "github.com/agentjido/jido-sub001"
)

type signalRequest struct {
	Type         string         `json:"type" binding:"required"`
	Data         any            `json:"data"`
	Source       string         `json:"source"`
	InitialState map[string]any `json:"initial_state"`
	TimeoutMS    int64          `json:"timeout_ms"`
}

func (s *Server) call(c *gin.Context) {
	key := c.Param("key")
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	server, err := s.manager.Get(c.Request.Context(), key, req.InitialState)
	if err != nil {
		serverError(c, err)
		return
	}
	signal := jido.NewSignal("", req.Source, req.Type, req.Data)
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	result, err := server.Call(c.Request.Context(), signal, timeout)
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, result)
}

func (s *Server) cast(c *gin.Context) {
	key := c.Param("key")
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	server, err := s.manager.Get(c.Request.Context(), key, req.InitialState)
	if err != nil {
		serverError(c, err)
		return
	}
	signal := jido.NewSignal("", req.Source, req.Type, req.Data)
	id, err := server.Cast(c.Request.Context(), signal)
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, gin.H{"signal_id": id})
}

func (s *Server) state(c *gin.Context) {
	key := c.Param("key")
	server, ok := s.manager.Lookup(key)
	if !ok {
		badRequest(c, "no live instance for key")
		return
	}
	success(c, gin.H{
		"status":    server.StatusNow(),
		"queue_len": server.QueueLen(),
		"state":     server.State(),
	})
}

func (s *Server) listStats(c *gin.Context) {
	success(c, s.manager.Stats())
}

// stop gracefully stops the instance for key: hibernate (if storage is
// configured) then terminate (§4.5).
func (s *Server) stop(c *gin.Context) {
	key := c.Param("key")
	if err := s.manager.Stop(key, "http_stop_requested"); err != nil {
		if errors.Is(err, jido.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no live instance for key"})
			return
		}
		serverError(c, err)
		return
	}
	success(c, gin.H{"stopped": key})
}
