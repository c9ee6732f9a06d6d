// Package realtime pushes toasts, clipboard requests and deposit events to
// connected browsers over websockets.
package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	backlogSize    = 20
)

var (
	ErrNoConnection = errors.New("no realtime connection for user")
	ErrHubClosed    = errors.New("realtime hub is closed")
)

// ClipboardPayload asks the browser to copy a value
type ClipboardPayload struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Hub tracks websocket clients per user
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	// toasts raised while a user had no open connection, replayed on connect
	backlog map[string][]entities.Event
	closed  bool
	logger  *zap.Logger
	now     func() time.Time
}

// Client is one browser connection
type Client struct {
	id        string
	userID    string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		backlog: make(map[string][]entities.Event),
		logger:  logger,
		now:     time.Now,
	}
}

// Serve registers conn for userID and blocks until the connection ends
func (h *Hub) Serve(userID string, conn *websocket.Conn) error {
	client := &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}

	pending, err := h.register(client)
	if err != nil {
		conn.Close()
		return err
	}
	defer h.unregister(client)

	for _, msg := range pending {
		client.enqueue(msg, h.logger)
	}

	go client.writePump(h.logger)
	client.readPump()
	return nil
}

func (h *Hub) register(c *Client) ([][]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	metrics.RealtimeConnections.Inc()

	var pending [][]byte
	for _, event := range h.backlog[c.userID] {
		if msg, err := json.Marshal(event); err == nil {
			pending = append(pending, msg)
		}
	}
	delete(h.backlog, c.userID)

	h.logger.Info("WebSocket client registered",
		zap.String("user_id", c.userID),
		zap.String("client_id", c.id),
		zap.Int("connection_count", len(h.clients[c.userID])),
	)
	return pending, nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if clients, ok := h.clients[c.userID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			metrics.RealtimeConnections.Dec()
		}
		if len(clients) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
	h.logger.Info("WebSocket client unregistered",
		zap.String("user_id", c.userID),
		zap.String("client_id", c.id),
	)
}

// Publish sends event to every connection the user has open
func (h *Hub) Publish(userID string, event entities.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now().UTC()
	}
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal realtime event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	clients := h.clients[userID]
	if len(clients) == 0 {
		if event.Type == entities.EventTypeToast {
			backlog := append(h.backlog[userID], event)
			if len(backlog) > backlogSize {
				backlog = backlog[len(backlog)-backlogSize:]
			}
			h.backlog[userID] = backlog
		}
		return
	}
	for c := range clients {
		c.enqueue(msg, h.logger)
	}
}

// Toast shows a toast in the user's browser
func (h *Hub) Toast(userID string, toast entities.Toast) {
	h.Publish(userID, entities.Event{Type: entities.EventTypeToast, Payload: toast})
}

// Copy asks the user's browser to put value on the clipboard
func (h *Hub) Copy(userID, label, value string) error {
	if !h.Connected(userID) {
		return ErrNoConnection
	}
	h.Publish(userID, entities.Event{
		Type:    entities.EventTypeClipboard,
		Payload: ClipboardPayload{Label: label, Value: value},
	})
	return nil
}

// Connected reports whether the user has an open connection
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Connections counts open connections across all users
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Disconnect closes every connection the user has open
func (h *Hub) Disconnect(userID string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		clients = append(clients, c)
	}
	delete(h.backlog, userID)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// Close disconnects everyone and rejects new connections
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, clients := range h.clients {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (c *Client) enqueue(msg []byte, logger *zap.Logger) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		logger.Warn("WebSocket client send buffer full, dropping message",
			zap.String("user_id", c.userID),
			zap.String("client_id", c.id),
		)
	}
}

// close signals writePump, which sends a close frame and releases the connection
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump drains incoming frames so pongs and close frames are processed
func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("WebSocket write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
