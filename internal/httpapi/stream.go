package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agentjido/jido-sub001/internal/envconfig"
	"github.com/agentjido/jido-sub001/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkLocalOrigin,
}

// checkLocalOrigin accepts connections with no Origin header (CLI/IDE
// clients) or one naming localhost, rejecting everything else.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	origin = strings.ToLower(origin)
	for _, allowed := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// stream upgrades to a websocket and forwards every bus message whose
// topic falls under "jido.agent.<key>" to the client as a JSON frame,
// until the client disconnects or the request context ends (§11 item 6).
func (s *Server) stream(c *gin.Context) {
	if s.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "event stream not configured"})
		return
	}
	key := c.Param("key")
	filter := fmt.Sprintf("jido.agent.%s", key)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Default().Warn("httpapi stream upgrade failed", logging.FieldError, err)
		return
	}
	defer conn.Close()

	subID := fmt.Sprintf("stream-%s-%d", key, time.Now().UnixNano())
	sub := s.bus.Subscribe(subID, filter)
	defer s.bus.Unsubscribe(subID)

	done := make(chan struct{})
	envconfig.SafeGo(func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.Ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
