package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/sorariku/liffcall/pkg/internal/database"
	"github.com/sorariku/liffcall/pkg/internal/models"
)

// ActiveCallStatuses are the states in which a callee counts as busy.
var ActiveCallStatuses = []string{
	models.CallStatusInitiated,
	models.CallStatusRinging,
	models.CallStatusAnswered,
}

type InitiateCallOptions struct {
	CalleeID        string
	CalleeServiceID string
	CallerID        string
	CallerServiceID string
	AudioFileIDs    []string
	Language        string
	ParentSid       *string
	RetryAttempt    int
}

// InitiateAgentCall creates a session in the initiated state, opens the
// conference room and hands the room to the headless agent launcher. The
// incoming-call push toward the callee is best effort.
func InitiateAgentCall(ctx context.Context, opts InitiateCallOptions) (models.CallSession, error) {
	sid := uuid.NewString()
	roomID := fmt.Sprintf("agent+%s", sid[:8])

	session := models.CallSession{
		Sid:             sid,
		RoomID:          roomID,
		CallerID:        opts.CallerID,
		CallerServiceID: opts.CallerServiceID,
		CalleeID:        opts.CalleeID,
		CalleeServiceID: opts.CalleeServiceID,
		Status:          models.CallStatusInitiated,
		AudioFileIDs:    datatypes.NewJSONSlice(opts.AudioFileIDs),
		Language:        opts.Language,
		ParentSid:       opts.ParentSid,
		Metadata: datatypes.JSONMap{
			"retry_attempt": opts.RetryAttempt,
		},
	}

	if err := CreateConferenceRoom(ctx, roomID); err != nil {
		return session, fmt.Errorf("remote conference error: %v", err)
	}

	if err := database.C.Create(&session).Error; err != nil {
		return session, err
	}
	appendCallEvent(sid, models.CallEventInitiated, session.Status, datatypes.JSONMap{
		"room_id":       roomID,
		"retry_attempt": opts.RetryAttempt,
	})

	if err := LaunchAgent(ctx, session); err != nil {
		if err := database.C.Model(&models.CallSession{}).
			Where("sid = ? AND status = ?", sid, models.CallStatusInitiated).
			Update("status", models.CallStatusFailed).Error; err != nil {
			log.Warn().Err(err).Str("sid", sid).Msg("An error occurred when marking session failed.")
		}
		appendCallEvent(sid, models.CallEventLaunchFailed, models.CallStatusFailed, datatypes.JSONMap{
			"error": err.Error(),
		})
		return session, fmt.Errorf("unable to launch agent: %v", err)
	}

	if err := SendIncomingCallPush(sid, opts.CalleeID, map[string]any{
		"type":      "incoming_call",
		"sid":       sid,
		"room_id":   roomID,
		"caller_id": opts.CallerID,
		"language":  opts.Language,
	}); err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("An error occurred when trying notify callee.")
	}

	return session, nil
}

// DeliveryResultStatus maps the provider's delivery result onto a session
// status. Anything but the literal SUCCESS counts as a failure; the upstream
// contract never enumerates its result codes.
func DeliveryResultStatus(result string) string {
	if result == "SUCCESS" {
		return models.CallStatusRinging
	}
	return models.CallStatusFailed
}

// HandleCallDelivery applies an outbound delivery callback. The status update,
// the metadata append and the event row are three independent best-effort
// writes; a failure in one never blocks the others and never reaches the
// upstream provider, which must see 200 to stop retrying.
func HandleCallDelivery(sid, result string, payload datatypes.JSONMap) {
	next := DeliveryResultStatus(result)
	allowed := []string{models.CallStatusInitiated}
	if next == models.CallStatusFailed {
		allowed = append(allowed, models.CallStatusRinging)
	}

	tx := database.C.Model(&models.CallSession{}).
		Where("sid = ? AND status IN ?", sid, allowed).
		Update("status", next)
	if tx.Error != nil {
		log.Warn().Err(tx.Error).Str("sid", sid).Msg("An error occurred when applying delivery result.")
	} else if tx.RowsAffected == 0 {
		log.Debug().Str("sid", sid).Str("result", result).Msg("Delivery result arrived for an already settled session.")
	}

	var session models.CallSession
	if err := database.C.Where("sid = ?", sid).First(&session).Error; err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("Delivery result references an unknown session.")
	} else {
		session.Metadata = appendDeliveryResult(session.Metadata, payload)
		if err := database.C.Model(&session).Update("metadata", session.Metadata).Error; err != nil {
			log.Warn().Err(err).Str("sid", sid).Msg("An error occurred when appending delivery metadata.")
		}
	}

	appendCallEvent(sid, models.CallEventDelivery, next, payload)
}

// RecordConferenceEvent ingests one provider room webhook and drives the
// answered/ended transitions off it.
func RecordConferenceEvent(roomID, userID, userName, eventType string, occurredAt time.Time) (models.ConferenceEvent, error) {
	event := models.ConferenceEvent{
		RoomID:     roomID,
		UserID:     userID,
		UserName:   userName,
		Type:       eventType,
		OccurredAt: occurredAt,
	}
	if err := database.C.Create(&event).Error; err != nil {
		return event, err
	}

	switch eventType {
	case models.RoomEventJoin:
		tx := database.C.Model(&models.CallSession{}).
			Where("room_id = ? AND callee_id = ? AND status IN ?", roomID, userID, []string{models.CallStatusInitiated, models.CallStatusRinging}).
			Updates(map[string]any{
				"status":      models.CallStatusAnswered,
				"answered_at": occurredAt,
			})
		if tx.Error != nil {
			log.Warn().Err(tx.Error).Str("room", roomID).Msg("An error occurred when marking session answered.")
		} else if tx.RowsAffected > 0 {
			appendRoomCallEvent(roomID, models.CallEventAnswered, models.CallStatusAnswered, userID)
		}
	case models.RoomEventEnd:
		tx := database.C.Model(&models.CallSession{}).
			Where("room_id = ? AND status = ?", roomID, models.CallStatusAnswered).
			Updates(map[string]any{
				"status":   models.CallStatusEnded,
				"ended_at": occurredAt,
			})
		if tx.Error != nil {
			log.Warn().Err(tx.Error).Str("room", roomID).Msg("An error occurred when marking session ended.")
		} else if tx.RowsAffected > 0 {
			appendRoomCallEvent(roomID, models.CallEventEnded, models.CallStatusEnded, userID)
		}
	}

	return event, nil
}

// CanScheduleRetry reports whether a session's state permits spawning a
// retry: only missed or failed calls re-dial.
func CanScheduleRetry(status string) bool {
	return status == models.CallStatusMissed || status == models.CallStatusFailed
}

// NextRetryAttempt is the attempt number a re-dial of this session carries.
func NextRetryAttempt(session models.CallSession) int {
	return session.RetryCount + 1
}

// ScheduleRetry queues a re-dial of a missed or failed call, at most one per
// session. The original session keeps its status; only retry_count moves, and
// only once the retry actually executes.
func ScheduleRetry(originalSid string, delay time.Duration) (models.RetryTask, error) {
	var task models.RetryTask
	if delay <= 0 {
		return task, fmt.Errorf("retry must be scheduled in the future")
	}

	var original models.CallSession
	if err := database.C.Where("sid = ?", originalSid).First(&original).Error; err != nil {
		return task, err
	}
	if !CanScheduleRetry(original.Status) {
		return task, fmt.Errorf("session %s is %s; only missed or failed calls can be retried", originalSid, original.Status)
	}

	// A failed task frees the slot; pending or completed means the single
	// allowed retry is already spoken for.
	var queued int64
	if err := database.C.Model(&models.RetryTask{}).
		Where("original_sid = ? AND status IN ?", originalSid, []string{models.RetryStatusPending, models.RetryStatusCompleted}).
		Count(&queued).Error; err != nil {
		return task, err
	}
	if queued > 0 {
		return task, fmt.Errorf("a retry is already queued for session %s", originalSid)
	}

	task = models.RetryTask{
		OriginalSid:     originalSid,
		CalleeID:        original.CalleeID,
		CalleeServiceID: original.CalleeServiceID,
		AudioFileIDs:    original.AudioFileIDs,
		Language:        original.Language,
		ScheduledAt:     time.Now().Add(delay),
		Status:          models.RetryStatusPending,
	}

	if err := database.C.Create(&task).Error; err != nil {
		return task, err
	}
	return task, nil
}

func IsCalleeBusy(calleeID string) (bool, error) {
	var count int64
	if err := database.C.Model(&models.CallSession{}).
		Where("callee_id = ? AND status IN ?", calleeID, ActiveCallStatuses).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// appendDeliveryResult accumulates callback payloads under delivery_results,
// so duplicate deliveries keep their full history in the session row too.
func appendDeliveryResult(metadata datatypes.JSONMap, payload datatypes.JSONMap) datatypes.JSONMap {
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	history, _ := metadata["delivery_results"].([]any)
	metadata["delivery_results"] = append(history, map[string]any(payload))
	return metadata
}

func appendCallEvent(sid, eventType, status string, payload datatypes.JSONMap) {
	event := models.CallEvent{
		Sid:     sid,
		Type:    eventType,
		Status:  status,
		Payload: payload,
	}
	if err := database.C.Create(&event).Error; err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("An error occurred when appending call event.")
	}
}

func appendRoomCallEvent(roomID, eventType, status, userID string) {
	var sids []string
	if err := database.C.Model(&models.CallSession{}).
		Where("room_id = ? AND status = ?", roomID, status).
		Pluck("sid", &sids).Error; err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("An error occurred when resolving sessions for a room event.")
		return
	}
	for _, sid := range lo.Uniq(sids) {
		appendCallEvent(sid, eventType, status, datatypes.JSONMap{"user_id": userID})
	}
}
