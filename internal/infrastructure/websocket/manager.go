package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campusmarket/internal/usecase"
	"campusmarket/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection. Every connection has its own
// ClientSession, so two tabs of the same user keep separate open
// conversations and unread markers.
type Client struct {
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Session *usecase.ClientSession

	ctx    context.Context
	cancel context.CancelFunc

	mutex     sync.Mutex
	followers map[string]context.CancelFunc
}

func NewClient(conn *websocket.Conn, session *usecase.ClientSession) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		UserID:    session.UserID(),
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		Session:   session,
		ctx:       ctx,
		cancel:    cancel,
		followers: make(map[string]context.CancelFunc),
	}
}

// Manager keeps track of live connections.
type Manager struct {
	clients map[string]map[*Client]struct{}
	mutex   sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Serve runs the connection until the peer goes away. The client's session
// must already be started; it is closed when Serve returns.
func (m *Manager) Serve(client *Client) {
	m.register(client)
	go client.WritePump()
	go client.watchUnread()
	client.ReadPump(m)
}

func (m *Manager) register(client *Client) {
	m.mutex.Lock()
	if m.clients[client.UserID] == nil {
		m.clients[client.UserID] = make(map[*Client]struct{})
	}
	m.clients[client.UserID][client] = struct{}{}
	m.mutex.Unlock()
	logger.Debug("Client registered: %s", client.UserID)
}

func (m *Manager) unregister(client *Client) {
	m.mutex.Lock()
	if conns, ok := m.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(m.clients, client.UserID)
		}
	}
	m.mutex.Unlock()
	logger.Debug("Client unregistered: %s", client.UserID)
}

// ConnectionCount reports how many connections userID has open.
func (m *Manager) ConnectionCount(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

// Shutdown disconnects every client.
func (m *Manager) Shutdown() {
	m.mutex.RLock()
	var all []*Client
	for _, conns := range m.clients {
		for client := range conns {
			all = append(all, client)
		}
	}
	m.mutex.RUnlock()

	for _, client := range all {
		client.close()
	}
}

// ReadPump reads frames until the connection fails, then tears the client
// down.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.unregister(c)
		c.close()
		c.Session.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: Connection error for %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleClientMessage(c, message)
	}
}

// WritePump is the only writer on the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket: Connection error for %s: %v", c.UserID, err)
				c.close()
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// enqueue hands a frame to the write pump. A client whose buffer is full is
// disconnected rather than allowed to stall the session.
func (c *Client) enqueue(message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("WebSocket: Failed to marshal %s frame: %v", message.Type, err)
		return
	}

	select {
	case <-c.ctx.Done():
	case c.Send <- data:
	default:
		logger.Warn("WebSocket: Send buffer full for %s, disconnecting", c.UserID)
		c.close()
	}
}

func (c *Client) close() {
	c.cancel()
	c.Conn.Close()
}
