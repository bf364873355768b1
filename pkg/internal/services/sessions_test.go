package services

// The state transitions themselves ride on guarded Postgres updates
// (conditional WHERE + RowsAffected), so end-to-end transition behavior is
// covered by integration tests against a real database. What we can safely
// unit-test here is the pure mapping and staleness logic the handlers and
// sweeps are built on.

import (
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/sorariku/liffcall/pkg/internal/models"
)

func TestDeliveryResultStatus(t *testing.T) {
	if got := DeliveryResultStatus("SUCCESS"); got != models.CallStatusRinging {
		t.Fatalf("SUCCESS should ring, got %q", got)
	}
	// The upstream provider's result codes are not enumerated; everything
	// else is a failure, including lowercase and unknown values.
	for _, result := range []string{"FAIL", "success", "TIMEOUT", "", "UNKNOWN_CODE"} {
		if got := DeliveryResultStatus(result); got != models.CallStatusFailed {
			t.Fatalf("%q should fail, got %q", result, got)
		}
	}
}

func TestCallSessionIsTerminal(t *testing.T) {
	terminal := []string{models.CallStatusMissed, models.CallStatusFailed, models.CallStatusEnded}
	for _, status := range terminal {
		if !(models.CallSession{Status: status}).IsTerminal() {
			t.Fatalf("%q should be terminal", status)
		}
	}
	live := []string{models.CallStatusInitiated, models.CallStatusRinging, models.CallStatusAnswered}
	for _, status := range live {
		if (models.CallSession{Status: status}).IsTerminal() {
			t.Fatalf("%q should not be terminal", status)
		}
	}
}

func TestCanScheduleRetry(t *testing.T) {
	for _, status := range []string{models.CallStatusMissed, models.CallStatusFailed} {
		if !CanScheduleRetry(status) {
			t.Fatalf("%q should allow a retry", status)
		}
	}
	// A call that is still ringing, already answered or fully ended must not
	// spawn a re-dial against the callee.
	for _, status := range []string{models.CallStatusInitiated, models.CallStatusRinging, models.CallStatusAnswered, models.CallStatusEnded, ""} {
		if CanScheduleRetry(status) {
			t.Fatalf("%q should not allow a retry", status)
		}
	}
}

func TestNextRetryAttempt(t *testing.T) {
	if got := NextRetryAttempt(models.CallSession{}); got != 1 {
		t.Fatalf("a fresh session's first retry should be attempt 1, got %d", got)
	}
	if got := NextRetryAttempt(models.CallSession{RetryCount: 2}); got != 3 {
		t.Fatalf("expected attempt 3 after two executed retries, got %d", got)
	}
}

func TestAppendDeliveryResultAccumulates(t *testing.T) {
	meta := appendDeliveryResult(nil, datatypes.JSONMap{"result": "FAIL"})
	meta = appendDeliveryResult(meta, datatypes.JSONMap{"result": "SUCCESS"})

	history, ok := meta["delivery_results"].([]any)
	if !ok || len(history) != 2 {
		t.Fatalf("expected two accumulated callbacks, got %+v", meta["delivery_results"])
	}
	first, _ := history[0].(map[string]any)
	second, _ := history[1].(map[string]any)
	if first["result"] != "FAIL" || second["result"] != "SUCCESS" {
		t.Fatalf("duplicate callbacks must keep arrival order, got %+v", history)
	}
}

func TestIsStaleCall(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	session := models.CallSession{Status: models.CallStatusRinging}
	session.CreatedAt = t0

	if IsStaleCall(session, t0.Add(60*time.Second)) {
		t.Fatalf("a session within the timeout must not be stale")
	}
	if !IsStaleCall(session, t0.Add(66*time.Second)) {
		t.Fatalf("a ringing session past 65s must be stale")
	}

	session.TimeoutNotified = true
	if IsStaleCall(session, t0.Add(66*time.Second)) {
		t.Fatalf("the one-shot guard must keep a notified session out of the sweep")
	}

	answered := models.CallSession{Status: models.CallStatusAnswered}
	answered.CreatedAt = t0
	if IsStaleCall(answered, t0.Add(10*time.Minute)) {
		t.Fatalf("an answered session never times out")
	}
}
