package models

import "time"

type NotificationType string

const (
	NotifyOrderCreated   NotificationType = "order_created"
	NotifyOrderAccepted  NotificationType = "order_accepted"
	NotifyOrderPickedUp  NotificationType = "order_picked_up"
	NotifyOrderInTransit NotificationType = "order_in_transit"
	NotifyOrderDelivered NotificationType = "order_delivered"
	NotifyOrderCancelled NotificationType = "order_cancelled"
	NotifyPaymentSuccess NotificationType = "payment_success"
	NotifyPaymentFailed  NotificationType = "payment_failed"
	NotifyNewMessage     NotificationType = "new_message"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
