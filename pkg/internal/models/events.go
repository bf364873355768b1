package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CallEventInitiated    = "call.initiated"
	CallEventDelivery     = "call.delivery"
	CallEventLaunchFailed = "call.launch_failed"
	CallEventTimeout      = "call.timeout"
	CallEventAnswered     = "call.answered"
	CallEventEnded        = "call.ended"
)

// CallEvent is an append-only log row for one session. Rows are never
// mutated or deleted.
type CallEvent struct {
	BaseModel

	Sid     string            `json:"sid" gorm:"index"`
	Type    string            `json:"type"`
	Status  string            `json:"status"`
	Payload datatypes.JSONMap `json:"payload"`
}

const (
	RoomEventStart = "room_start"
	RoomEventEnd   = "room_end"
	RoomEventJoin  = "join"
	RoomEventLeave = "leave"
)

// ConferenceEvent mirrors the conferencing provider's room webhooks. The
// active-room view is derived purely by replaying these rows.
type ConferenceEvent struct {
	BaseModel

	RoomID     string    `json:"room_id" gorm:"index"`
	UserID     string    `json:"user_id" gorm:"index"`
	UserName   string    `json:"user_name"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at" gorm:"index"`
}
