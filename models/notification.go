package models

import "gorm.io/gorm"

// Notification event types pushed over the websocket stream.
const (
	NotifyLeadCreated    = "lead_created"
	NotifyLeadUpdated    = "lead_updated"
	NotifyLeadAssigned   = "lead_assigned"
	NotifyLeadReleased   = "lead_released"
	NotifyLeadDeleted    = "lead_deleted"
	NotifyClassEnrolled  = "class_enrolled"
	NotifyClassWithdrawn = "class_withdrawn"
)

// Notification persists one event per targeted role so that clients
// reconnecting after a dropped websocket can still see what they missed.
// Delivery over the socket itself is best effort.
type Notification struct {
	gorm.Model

	// Empty means broadcast.
	Role string `gorm:"index" json:"role"`

	Type   string `gorm:"not null" json:"type"`
	Title  string `gorm:"not null" json:"title"`
	Body   string `gorm:"type:text" json:"body"`
	IsRead bool   `gorm:"default:false" json:"is_read"`
}
