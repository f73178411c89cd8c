package websocket

import (
	"context"
	"sync"
	"time"

	"elaro/models"

	"github.com/sirupsen/logrus"
)

// Hub fans in-app notifications out to connected clients. One user may hold
// several connections (phone and tablet); a publish goes to all of them.
type Hub struct {
	clients     map[*Client]bool
	userClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	sendToUser chan userMessage

	stats HubStats
	mutex sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	metricsTicker *time.Ticker
}

type userMessage struct {
	UserID  string
	Message WSMessage
	Sent    chan bool
}

// WSMessage is the frame pushed to clients.
type WSMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	WSTypeNotification = "notification"
	WSTypePing         = "ping"
	WSTypeError        = "error"
)

type HubStats struct {
	TotalConnections  int64
	ActiveConnections int
	MessagesSent      int64
	StartTime         time.Time
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		sendToUser:  make(chan userMessage),
		stats: HubStats{
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *Hub) Run() {
	logrus.Info("WebSocket hub starting")

	h.metricsTicker = time.NewTicker(time.Minute)
	go h.runMetrics()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.sendToUser:
			msg.Sent <- h.deliverToUser(msg.UserID, msg.Message)

		case <-h.ctx.Done():
			logrus.Info("WebSocket hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	if h.metricsTicker != nil {
		h.metricsTicker.Stop()
	}
	h.cancel()
}

// Publish pushes a notification to every live connection of the user.
// Returns false when the user has no connection; the caller decides whether
// another channel covers the send.
func (h *Hub) Publish(userID string, notification *models.Notification) bool {
	msg := userMessage{
		UserID: userID,
		Message: WSMessage{
			Type:      WSTypeNotification,
			Payload:   notification,
			Timestamp: time.Now(),
		},
		Sent: make(chan bool, 1),
	}

	select {
	case h.sendToUser <- msg:
		return <-msg.Sent
	case <-h.ctx.Done():
		return false
	}
}

// Stats returns a copy of the hub counters.
func (h *Hub) Stats() HubStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.stats
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	h.userClients[client.userID][client] = true

	h.stats.ActiveConnections++
	h.stats.TotalConnections++

	logrus.Infof("WebSocket client connected: user %s (%d active)", client.userID, h.stats.ActiveConnections)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	if conns, ok := h.userClients[client.userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, client.userID)
		}
	}
	close(client.send)
	h.stats.ActiveConnections--

	logrus.Infof("WebSocket client disconnected: user %s (%d active)", client.userID, h.stats.ActiveConnections)
}

func (h *Hub) deliverToUser(userID string, message WSMessage) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	conns, ok := h.userClients[userID]
	if !ok || len(conns) == 0 {
		return false
	}

	delivered := false
	for client := range conns {
		select {
		case client.send <- message:
			delivered = true
			h.stats.MessagesSent++
		default:
			// Send buffer full; the client is stalled. Drop it.
			go func(c *Client) { h.unregister <- c }(client)
		}
	}

	return delivered
}

func (h *Hub) runMetrics() {
	for {
		select {
		case <-h.metricsTicker.C:
			h.mutex.RLock()
			logrus.Debugf("WebSocket hub: %d active connections, %d messages sent",
				h.stats.ActiveConnections, h.stats.MessagesSent)
			h.mutex.RUnlock()
		case <-h.ctx.Done():
			return
		}
	}
}
