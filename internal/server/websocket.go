package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	mesh "github.com/nevindra/mesh"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients connect from arbitrary frontends.
	CheckOrigin: func(*http.Request) bool { return true },
}

// frame is the outbound WebSocket envelope.
type frame struct {
	Event     string `json:"event"`
	TaskID    string `json:"task_id"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// inbound is a client message on the task socket.
type inbound struct {
	Event string `json:"event"`
	Data  struct {
		Text string `json:"text"`
		Team string `json:"team"`
	} `json:"data"`
}

// wsConn adapts one WebSocket connection to mesh.Sink. Writes are mutex
// guarded because the bus and per-connection replies may send concurrently.
type wsConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

var _ mesh.Sink = (*wsConn)(nil)

func (c *wsConn) Send(ev mesh.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame{
		Event:     string(ev.Type),
		TaskID:    ev.TaskID,
		Timestamp: ev.Timestamp.Format(time.RFC3339),
		Data:      ev.Data,
	})
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// handleTaskProcess upgrades the connection and reads user_input messages
// until the client goes away. Each connection gets its own sequential read
// loop; task execution happens on worker goroutines.
func (s *Server) handleTaskProcess(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws: upgrade failed", "err", err)
		return
	}

	id := mesh.NewID()
	sink := &wsConn{id: id, conn: conn}
	s.bus.Connect(id, sink)
	defer s.bus.Disconnect(id)

	s.logger.Info("ws: client connected", "conn_id", id)
	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws: read error", "conn_id", id, "err", err)
			}
			return
		}
		if msg.Event != "user_input" {
			s.logger.Debug("ws: ignoring message", "conn_id", id, "event", msg.Event)
			continue
		}
		s.worker.HandleUserInput(id, msg.Data.Text, msg.Data.Team)
	}
}
