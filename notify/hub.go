package notify

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
)

// Conn is the slice of a websocket connection the hub needs. Satisfied by
// *websocket.Conn from gofiber/websocket.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Event is one role-filtered notification pushed to connected clients.
// Empty Roles means broadcast to everyone.
type Event struct {
	Type    string      `json:"type"`
	Title   string      `json:"title"`
	Body    string      `json:"body,omitempty"`
	Roles   []string    `json:"-"`
	Payload interface{} `json:"payload,omitempty"`
}

type client struct {
	role string
	conn Conn

	// writeMu serializes WriteJSON calls; the underlying websocket
	// connection does not allow concurrent writers.
	writeMu sync.Mutex
}

func (c *client) write(event Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}

// Hub fans events out to registered websocket clients. It is constructed
// once in main and handed to the controllers that publish; delivery is
// at-most-once and a write failure drops the client without retry. With a
// db handle set, published events are also stored so clients reconnecting
// after a dropped socket can catch up.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
	db      *gorm.DB
	logger  *logrus.Logger
}

func NewHub(db *gorm.DB, logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		db:      db,
		logger:  logger,
	}
}

// Register adds a connection under the given role and returns its id.
func (h *Hub) Register(conn Conn, role string) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = &client{role: role, conn: conn}
	h.mu.Unlock()
	return id
}

// Unregister removes a connection.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish stores the event and delivers it to every client whose role
// matches. Failed writes are logged and the client dropped; they are never
// retried.
func (h *Hub) Publish(event Event) {
	h.persist(event)

	h.mu.Lock()
	targets := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		if matchesRole(event.Roles, c.role) {
			targets[id] = c
		}
	}
	h.mu.Unlock()

	for id, c := range targets {
		if err := c.write(event); err != nil {
			h.logger.WithError(err).WithField("client_id", id).
				Warn("dropping notification client after failed write")
			h.Unregister(id)
		}
	}
}

// persist writes one notification row per targeted role, or a single
// broadcast row. Storage failure never blocks delivery.
func (h *Hub) persist(event Event) {
	if h.db == nil {
		return
	}

	roles := event.Roles
	if len(roles) == 0 {
		roles = []string{""}
	}
	for _, role := range roles {
		notification := models.Notification{
			Role:  role,
			Type:  event.Type,
			Title: event.Title,
			Body:  event.Body,
		}
		if err := h.db.Create(&notification).Error; err != nil {
			h.logger.WithError(err).WithField("type", event.Type).
				Warn("failed to store notification")
			return
		}
	}
}

func matchesRole(roles []string, role string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
