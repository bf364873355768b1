package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CallStatusInitiated = "initiated"
	CallStatusRinging   = "ringing"
	CallStatusAnswered  = "answered"
	CallStatusMissed    = "missed"
	CallStatusFailed    = "failed"
	CallStatusEnded     = "ended"
)

// CallSession is one agent-initiated call attempt. A session never gets
// deleted; terminal rows only accept metadata appends.
type CallSession struct {
	BaseModel

	Sid             string                      `json:"sid" gorm:"uniqueIndex"`
	RoomID          string                      `json:"room_id" gorm:"index"`
	CallerID        string                      `json:"caller_id"`
	CallerServiceID string                      `json:"caller_service_id"`
	CalleeID        string                      `json:"callee_id" gorm:"index"`
	CalleeServiceID string                      `json:"callee_service_id"`
	Status          string                      `json:"status" gorm:"index"`
	AudioFileIDs    datatypes.JSONSlice[string] `json:"audio_file_ids"`
	Language        string                      `json:"language"`
	RetryCount      int                         `json:"retry_count"`
	ParentSid       *string                     `json:"parent_sid,omitempty"`
	TimeoutNotified bool                        `json:"timeout_notified"`
	AnsweredAt      *time.Time                  `json:"answered_at,omitempty"`
	EndedAt         *time.Time                  `json:"ended_at,omitempty"`
	Metadata        datatypes.JSONMap           `json:"metadata"`
}

func (s CallSession) IsTerminal() bool {
	switch s.Status {
	case CallStatusMissed, CallStatusFailed, CallStatusEnded:
		return true
	}
	return false
}
