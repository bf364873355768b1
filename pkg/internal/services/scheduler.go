package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sorariku/liffcall/pkg/internal/database"
	"github.com/sorariku/liffcall/pkg/internal/models"
)

// CallRingTimeout is the nominal 60s ring timeout plus a 5s buffer for
// callback delivery lag.
const CallRingTimeout = 65 * time.Second

type RetryReport struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type SweepReport struct {
	Scanned  int `json:"scanned"`
	Missed   int `json:"missed"`
	Notified int `json:"notified"`
}

// ExecuteDueRetries drains due retry tasks, oldest first and strictly
// sequentially to bound duplicate-call risk. A busy callee leaves the task
// pending for the next tick; only an actual initiation error settles it as
// failed. One task's failure never aborts the batch.
func ExecuteDueRetries(ctx context.Context, limit int) RetryReport {
	var report RetryReport

	var tasks []models.RetryTask
	if err := database.C.
		Where("status = ? AND scheduled_at <= ?", models.RetryStatusPending, time.Now()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		log.Error().Err(err).Msg("An error occurred when loading due retry tasks.")
		return report
	}

	for _, task := range tasks {
		report.Processed++

		busy, err := IsCalleeBusy(task.CalleeID)
		if err != nil {
			log.Error().Err(err).Uint("task", task.ID).Msg("An error occurred when checking callee activity, leaving task pending.")
			report.Skipped++
			continue
		}
		if busy {
			report.Skipped++
			continue
		}

		attempt := 1
		var original models.CallSession
		if err := database.C.Where("sid = ?", task.OriginalSid).First(&original).Error; err != nil {
			log.Warn().Err(err).Str("sid", task.OriginalSid).Msg("An error occurred when loading the original session for attempt numbering.")
		} else {
			attempt = NextRetryAttempt(original)
		}

		session, err := InitiateAgentCall(ctx, InitiateCallOptions{
			CalleeID:        task.CalleeID,
			CalleeServiceID: task.CalleeServiceID,
			AudioFileIDs:    task.AudioFileIDs,
			Language:        task.Language,
			ParentSid:       lo.ToPtr(task.OriginalSid),
			RetryAttempt:    attempt,
		})
		if err != nil {
			report.Failed++
			if err := database.C.Model(&models.RetryTask{}).
				Where("id = ? AND status = ?", task.ID, models.RetryStatusPending).
				Updates(map[string]any{
					"status":     models.RetryStatusFailed,
					"last_error": err.Error(),
				}).Error; err != nil {
				log.Warn().Err(err).Uint("task", task.ID).Msg("An error occurred when settling a failed retry task.")
			}
			continue
		}

		report.Completed++
		if err := database.C.Model(&models.RetryTask{}).
			Where("id = ? AND status = ?", task.ID, models.RetryStatusPending).
			Updates(map[string]any{
				"status":    models.RetryStatusCompleted,
				"retry_sid": session.Sid,
			}).Error; err != nil {
			log.Warn().Err(err).Uint("task", task.ID).Msg("An error occurred when settling a completed retry task.")
		}
		if err := database.C.Model(&models.CallSession{}).
			Where("sid = ?", task.OriginalSid).
			UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error; err != nil {
			log.Warn().Err(err).Str("sid", task.OriginalSid).Msg("An error occurred when bumping retry count.")
		}
	}

	return report
}

// IsStaleCall reports whether a session has been waiting past the ring
// timeout without its one-shot timeout notification.
func IsStaleCall(session models.CallSession, now time.Time) bool {
	if session.TimeoutNotified {
		return false
	}
	if session.Status != models.CallStatusInitiated && session.Status != models.CallStatusRinging {
		return false
	}
	return now.Sub(session.CreatedAt) > CallRingTimeout
}

// SweepStaleCalls transitions stale rows to missed. The guarded update's row
// count decides whether this sweep owns the notification side effect, so two
// racing ticks notify at most once.
func SweepStaleCalls(ctx context.Context, limit int) SweepReport {
	var report SweepReport
	now := time.Now()

	var stale []models.CallSession
	if err := database.C.
		Where("status IN ? AND created_at < ? AND timeout_notified = ?",
			[]string{models.CallStatusInitiated, models.CallStatusRinging}, now.Add(-CallRingTimeout), false).
		Order("created_at ASC").
		Limit(limit).
		Find(&stale).Error; err != nil {
		log.Error().Err(err).Msg("An error occurred when loading stale sessions.")
		return report
	}

	for _, session := range stale {
		report.Scanned++

		// The SQL filter is a coarse pre-select; the loaded row decides.
		if !IsStaleCall(session, now) {
			continue
		}

		tx := database.C.Model(&models.CallSession{}).
			Where("id = ? AND timeout_notified = ?", session.ID, false).
			Updates(map[string]any{
				"status":           models.CallStatusMissed,
				"timeout_notified": true,
			})
		if tx.Error != nil {
			log.Warn().Err(tx.Error).Str("sid", session.Sid).Msg("An error occurred when marking session missed.")
			continue
		}
		if tx.RowsAffected == 0 {
			// A concurrent sweep already owned this transition.
			continue
		}

		report.Missed++
		appendCallEvent(session.Sid, models.CallEventTimeout, models.CallStatusMissed, datatypes.JSONMap{
			"ring_timeout_seconds": int(CallRingTimeout.Seconds()),
		})
		CloseConferenceRoom(ctx, session.RoomID)

		if err := SendMissedCallNotice(session); err != nil {
			log.Warn().Err(err).Str("sid", session.Sid).Msg("An error occurred when sending the timeout notification.")
		} else {
			report.Notified++
		}
	}

	return report
}

// RunSchedulerTick is the cron entrypoint covering both scans.
func RunSchedulerTick() {
	ctx := context.Background()
	retries := ExecuteDueRetries(ctx, 10)
	sweep := SweepStaleCalls(ctx, 50)

	if retries.Processed > 0 || sweep.Scanned > 0 {
		log.Info().
			Int("retries_processed", retries.Processed).
			Int("retries_completed", retries.Completed).
			Int("calls_missed", sweep.Missed).
			Msg("Scheduler tick accomplished.")
	}
}
