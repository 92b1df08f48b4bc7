package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultBuffer is the per-connection outbound queue length.
const DefaultBuffer = 64

var (
	ErrUnknownConnection = errors.New("realtime: unknown connection")
	ErrEmptyRoom         = errors.New("realtime: empty room name")
	ErrSlowConsumer      = errors.New("realtime: connection buffer full")
)

// Message is one named event with a JSON encoded payload.
type Message struct {
	Event string
	Data  []byte
}

// NewMessage encodes payload for delivery as event.
func NewMessage(event string, payload any) (Message, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Message{Event: event, Data: data}, nil
}

// PublishError lists the members of Room that could not be handed the message.
type PublishError struct {
	Room   string
	Failed []string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %d member(s) skipped: %s", e.Room, len(e.Failed), strings.Join(e.Failed, ","))
}

// Conn is one registered session. Messages are queued in publish order.
type Conn struct {
	ID   string
	send chan Message
	done chan struct{}
}

// Messages returns the outbound queue of the connection.
func (c *Conn) Messages() <-chan Message { return c.send }

// Done is closed once the connection has been unregistered.
func (c *Conn) Done() <-chan struct{} { return c.done }

type member struct {
	conn  *Conn
	rooms map[string]struct{}
}

// Hub owns the room membership table. All methods are safe for concurrent use.
type Hub struct {
	buffer int
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	conns  map[string]*member
	rooms  map[string]map[string]*Conn
}

func NewHub(buffer int, logger *log.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		buffer: buffer,
		logger: logger,
		conns:  make(map[string]*member),
		rooms:  make(map[string]map[string]*Conn),
	}
}

// Register creates a connection that belongs to no room yet. On a closed hub
// the returned connection is already done.
func (h *Hub) Register() *Conn {
	c := &Conn{
		ID:   uuid.NewString(),
		send: make(chan Message, h.buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c.done)
		return c
	}
	h.conns[c.ID] = &member{conn: c, rooms: make(map[string]struct{})}
	return c
}

// Close ends every connection so open streams return, and refuses new ones.
// It is called before the HTTP server shuts down, which otherwise waits on
// streams that never go idle.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, m := range h.conns {
		close(m.conn.done)
		delete(h.conns, id)
	}
	h.rooms = make(map[string]map[string]*Conn)
	h.logger.Info("realtime hub closed")
}

// Unregister removes the connection from every room it joined.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[connID]
	if !ok {
		return
	}
	for room := range m.rooms {
		h.removeLocked(room, connID)
	}
	delete(h.conns, connID)
	close(m.conn.done)
	h.logger.WithFields(log.Fields{"conn": connID, "rooms": len(m.rooms)}).Debug("realtime connection closed")
}

func (h *Hub) Join(connID, room string) error {
	if room == "" {
		return ErrEmptyRoom
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	m.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[connID] = m.conn
	return nil
}

func (h *Hub) Leave(connID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	delete(m.rooms, room)
	h.removeLocked(room, connID)
	return nil
}

func (h *Hub) removeLocked(room, connID string) {
	members := h.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish queues msg once for every current member of room without blocking.
// Members whose queue is full are skipped and reported in a *PublishError.
// Publishing to a room without members is a no-op.
func (h *Hub) Publish(_ context.Context, room string, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var failed []string
	for id, c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return &PublishError{Room: room, Failed: failed}
	}
	return nil
}

// SendTo queues msg for a single connection.
func (h *Hub) SendTo(connID string, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	select {
	case m.conn.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Members returns the number of connections currently in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
