// internal/web/websocket.go - live dashboard refresh
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sitemonitor/internal/monitoring"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsReadLimit  = 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subscription selects the dashboard a client wants pushed.
type Subscription struct {
	Page    string `json:"page"`
	Country string `json:"country"`
	Name    string `json:"name"`
	Port    int    `json:"port,omitempty"`
	Host    string `json:"host,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

type WSClient struct {
	id        uuid.UUID
	conn      *websocket.Conn
	send      chan WSMessage
	subscribe chan Subscription
	done      chan struct{}
	server    *Server
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger(c).WithError(err).Error("Failed to upgrade websocket")
		return
	}

	client := &WSClient{
		id:        uuid.New(),
		conn:      conn,
		send:      make(chan WSMessage, 16),
		subscribe: make(chan Subscription, 1),
		done:      make(chan struct{}),
		server:    s,
	}
	s.registerClient(client)

	go client.writePump()
	go client.refreshLoop()
	go client.readPump()
}

func (s *Server) registerClient(client *WSClient) {
	s.wsMu.Lock()
	s.wsClients[client] = true
	s.wsMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordWebSocketConnection(1)
	}
	logrus.WithField("client", client.id).Debug("Websocket client connected")
}

func (s *Server) unregisterClient(client *WSClient) {
	s.wsMu.Lock()
	_, ok := s.wsClients[client]
	delete(s.wsClients, client)
	s.wsMu.Unlock()

	if ok {
		if s.metrics != nil {
			s.metrics.RecordWebSocketConnection(-1)
		}
		logrus.WithField("client", client.id).Debug("Websocket client disconnected")
	}
}

// closeWebSockets drops every connected client; their pumps exit on the
// resulting read error.
func (s *Server) closeWebSockets() {
	s.wsMu.Lock()
	clients := make([]*WSClient, 0, len(s.wsClients))
	for client := range s.wsClients {
		clients = append(clients, client)
	}
	s.wsMu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}

func (c *WSClient) readPump() {
	defer func() {
		close(c.done)
		c.server.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var sub Subscription
		if err := c.conn.ReadJSON(&sub); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("client", c.id).Warn("Websocket read failed")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		sub.Country = strings.ToUpper(sub.Country)

		// only the newest subscription matters
		select {
		case <-c.subscribe:
		default:
		}
		c.subscribe <- sub
	}
}

// refreshLoop assembles the subscribed dashboard on every new subscription
// and on every refresh tick.
func (c *WSClient) refreshLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.done
		cancel()
	}()

	interval := c.server.config.Server.RefreshInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var current *Subscription
	for {
		select {
		case <-c.done:
			return
		case sub := <-c.subscribe:
			current = &sub
		case <-ticker.C:
			if current == nil {
				continue
			}
		}
		c.push(ctx, *current)
	}
}

func (c *WSClient) push(ctx context.Context, sub Subscription) {
	r, err := parseRange(sub.From, sub.To)
	if err != nil {
		c.deliver(WSMessage{Type: "error", Data: gin.H{"error": err.Error()}})
		return
	}

	dash, err := c.server.assembler.Assemble(ctx, sub.Page, sub.Country, sub.Name, monitoring.Options{
		PortOverride: sub.Port,
		HostName:     sub.Host,
		Range:        r,
	})

	msg := WSMessage{Type: "dashboard", Data: dash}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logrus.WithError(err).WithField("client", c.id).Error("Failed to assemble dashboard")
		msg = WSMessage{Type: "error", Data: gin.H{"error": "Failed to assemble dashboard"}}
	}

	c.deliver(msg)
}

func (c *WSClient) deliver(msg WSMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
