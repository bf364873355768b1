package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RetryStatusPending   = "pending"
	RetryStatusCompleted = "completed"
	RetryStatusFailed    = "failed"
)

// RetryTask is a scheduled re-dial of a missed or failed call. An entry gets
// at most one terminal transition; a busy callee leaves it pending.
type RetryTask struct {
	BaseModel

	OriginalSid     string                      `json:"original_sid" gorm:"index"`
	RetrySid        *string                     `json:"retry_sid,omitempty"`
	CalleeID        string                      `json:"callee_id"`
	CalleeServiceID string                      `json:"callee_service_id"`
	AudioFileIDs    datatypes.JSONSlice[string] `json:"audio_file_ids"`
	Language        string                      `json:"language"`
	ScheduledAt     time.Time                   `json:"scheduled_at" gorm:"index"`
	Status          string                      `json:"status" gorm:"index"`
	LastError       *string                     `json:"last_error,omitempty"`
}
