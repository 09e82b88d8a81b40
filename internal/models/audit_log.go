package models

import "time"

type AuditLog struct {
	ID         int64          `json:"id"`
	ActorID    *string        `json:"actor_id,omitempty"`
	EntityType string         `json:"entity_type"`
	EntityID   *string        `json:"entity_id,omitempty"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
