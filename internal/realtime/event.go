package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// DriversRoom holds every connected driver.
const DriversRoom = "drivers"

func UserRoom(userID string) string   { return "user:" + userID }
func OrderRoom(orderID string) string { return "order:" + orderID }

// Event is one server-to-client message addressed to a room.
type Event struct {
	Room      string          `json:"room"`
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(room, name string, payload any) (Event, error) {
	ev := Event{Room: room, Name: name, Timestamp: time.Now().UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Data = b
	}
	return ev, nil
}

// Publisher fans an event out to every subscriber of room.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}
