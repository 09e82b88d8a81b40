package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dispatchly/backend/internal/metrics"
	"github.com/dispatchly/backend/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
	maxMessage = 4096
)

// Actions performs the client actions that touch domain state.
type Actions interface {
	CanJoinOrder(ctx context.Context, userID string, role models.Role, orderID string) bool
	UpdateDriverLocation(ctx context.Context, userID string, role models.Role, orderID string, lat, lng float64) error
}

// Hub tracks websocket clients by room and delivers events to them.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	actions Actions
	pub     Publisher
	log     *slog.Logger
}

func NewHub(actions Actions, log *slog.Logger) *Hub {
	h := &Hub{
		rooms:   map[string]map[*Client]struct{}{},
		actions: actions,
		log:     log.With("component", "realtime"),
	}
	h.pub = LocalRelay{hub: h}
	return h
}

// Use routes client-originated broadcasts through p, so they reach clients
// connected to other instances as well.
func (h *Hub) Use(p Publisher) { h.pub = p }

// Client is one websocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	role   models.Role
	send   chan []byte
	rooms  map[string]struct{}
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[room]
	if !ok {
		set = map[*Client]struct{}{}
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
	h.mu.Unlock()
	metrics.RealtimeConnections.Dec()
}

// RoomSize reports how many clients are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Deliver sends ev to the clients of its room connected to this process.
// Slow clients whose buffer is full miss the event.
func (h *Hub) Deliver(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", "event", ev.Name, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[ev.Room] {
		select {
		case c.send <- b:
		default:
			h.log.Warn("client send buffer full", "user_id", c.userID, "event", ev.Name)
		}
	}
}

// Serve runs the connection until it closes. The client joins its user room,
// and drivers also join DriversRoom.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, userID string, role models.Role) {
	c := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		role:   role,
		send:   make(chan []byte, sendBuffer),
		rooms:  map[string]struct{}{},
	}
	metrics.RealtimeConnections.Inc()
	h.join(c, UserRoom(userID))
	if role == models.RoleDriver {
		h.join(c, DriversRoom)
	}
	h.log.Debug("client connected", "user_id", userID, "role", role)

	go c.writePump()
	c.readPump(ctx)
	h.unregister(c)
	h.log.Debug("client disconnected", "user_id", userID)
}

type inbound struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type orderPayload struct {
	OrderID   string   `json:"orderId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Message   string   `json:"message"`
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read failed", "user_id", c.userID, "err", err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply("error", map[string]any{"message": "invalid message"})
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			c.reply("error", map[string]any{"action": msg.Action, "message": err.Error()})
			continue
		}
		c.reply("ack", map[string]any{"action": msg.Action, "success": true})
	}
}

var errOrderRequired = errors.New("orderId is required")

func (c *Client) handle(ctx context.Context, msg inbound) error {
	var p orderPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return errors.New("invalid payload")
		}
	}
	if p.OrderID == "" {
		return errOrderRequired
	}
	h := c.hub

	switch msg.Action {
	case "join_order":
		if !h.actions.CanJoinOrder(ctx, c.userID, c.role, p.OrderID) {
			return errors.New("not allowed to join this order")
		}
		h.join(c, OrderRoom(p.OrderID))
	case "leave_order":
		h.leave(c, OrderRoom(p.OrderID))
	case "update_driver_location":
		if p.Latitude == nil || p.Longitude == nil {
			return errors.New("invalid driver location payload")
		}
		return h.actions.UpdateDriverLocation(ctx, c.userID, c.role, p.OrderID, *p.Latitude, *p.Longitude)
	case "send_message":
		if p.Message == "" {
			return errors.New("message is required")
		}
		if !h.actions.CanJoinOrder(ctx, c.userID, c.role, p.OrderID) {
			return errors.New("not allowed to message this order")
		}
		return h.pub.Publish(ctx, OrderRoom(p.OrderID), "new_message", map[string]any{
			"orderId": p.OrderID,
			"userId":  c.userID,
			"message": p.Message,
		})
	default:
		return errors.New("unknown action")
	}
	return nil
}

// reply queues a message for this client only.
func (c *Client) reply(name string, payload any) {
	ev, err := NewEvent(UserRoom(c.userID), name, payload)
	if err != nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
