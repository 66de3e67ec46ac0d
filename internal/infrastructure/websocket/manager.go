package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"swapmeet/pkg/logger"
)

// Client represents one authenticated WebSocket connection.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	// sendMu guards Send against a close racing an in-flight send; every
	// write to Send and the close itself happen under it.
	sendMu     sync.Mutex
	sendClosed bool

	done     chan struct{}
	doneOnce sync.Once
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Done is closed when the client is unregistered; goroutines piping
// subscriptions to this client use it as their stop signal.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// trySend queues a payload unless the channel is closed or full.
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once, synchronized with trySend
// so no sender can hit a closed channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
}

// Manager tracks active connections and conversation-room membership.
type Manager struct {
	clients    map[string]*Client
	rooms      map[string]map[string]bool // conversation id -> set of user ids
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Start runs the manager's registration loop until ctx is canceled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if old, ok := m.clients[client.UserID]; ok {
					old.closeSend()
					old.markDone()
				}
				m.clients[client.UserID] = client
				m.mutex.Unlock()
				logger.Info("Client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if current, ok := m.clients[client.UserID]; ok && current == client {
					delete(m.clients, client.UserID)
					for _, members := range m.rooms {
						delete(members, client.UserID)
					}
				}
				m.mutex.Unlock()
				client.closeSend()
				client.markDone()
				logger.Info("Client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// SendToUser delivers a payload to one user's connection, dropping it when
// the user is offline or the send buffer is full.
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.mutex.RLock()
	client, ok := m.clients[userID]
	m.mutex.RUnlock()

	if !ok {
		return
	}

	if !client.trySend(payload) {
		logger.Warn("SendToUser: dropping payload for %s", userID)
	}
}

// JoinRoom adds the user to a conversation room.
func (m *Manager) JoinRoom(conversationID, userID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members, ok := m.rooms[conversationID]
	if !ok {
		members = make(map[string]bool)
		m.rooms[conversationID] = members
	}
	members[userID] = true
}

// LeaveRoom removes the user from a conversation room.
func (m *Manager) LeaveRoom(conversationID, userID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if members, ok := m.rooms[conversationID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(m.rooms, conversationID)
		}
	}
}

// SendToRoom delivers a payload to every room member except exceptUserID.
func (m *Manager) SendToRoom(conversationID string, payload []byte, exceptUserID string) {
	m.mutex.RLock()
	members := make([]string, 0, len(m.rooms[conversationID]))
	for userID := range m.rooms[conversationID] {
		if userID != exceptUserID {
			members = append(members, userID)
		}
	}
	m.mutex.RUnlock()

	for _, userID := range members {
		m.SendToUser(userID, payload)
	}
}

// WritePump drains the send channel onto the connection. Runs as a goroutine
// per client; exits when the manager closes the channel.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		payload, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Error("WritePump: write to %s failed: %v", c.UserID, err)
			return
		}
	}
}
