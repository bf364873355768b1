package services

import (
	"context"
	"testing"
	"time"
)

func newTestLockManager(start time.Time) (*LockManager, *time.Time) {
	now := start
	manager := NewLockManager(NewMemoryLockStore())
	manager.clock = func() time.Time { return now }
	return manager, &now
}

func TestAcquireConflictReportsHolder(t *testing.T) {
	manager, _ := newTestLockManager(time.Unix(1700000000, 0))
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "room-1", "alice", "Alice")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !first.Acquired {
		t.Fatalf("expected first acquire to succeed")
	}

	second, err := manager.Acquire(ctx, "room-1", "bob", "Bob")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if second.Acquired {
		t.Fatalf("expected second acquire to be refused")
	}
	if second.Holder == nil || second.Holder.HolderID != "alice" {
		t.Fatalf("expected existing holder identity, got %+v", second.Holder)
	}
}

func TestReacquireByHolderRefreshesHeartbeat(t *testing.T) {
	manager, now := newTestLockManager(time.Unix(1700000000, 0))
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, "room-1", "alice", "Alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	*now = now.Add(20 * time.Second)
	again, err := manager.Acquire(ctx, "room-1", "alice", "Alice")
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !again.Acquired {
		t.Fatalf("expected holder re-acquire to succeed")
	}

	// 20s + 25s is past the TTL from the first heartbeat but not the second.
	*now = now.Add(25 * time.Second)
	status, err := manager.Status(ctx, "room-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Locked {
		t.Fatalf("expected lock to remain held after re-acquire refresh")
	}
}

func TestHeartbeatFromNonHolderHasNoEffect(t *testing.T) {
	manager, now := newTestLockManager(time.Unix(1700000000, 0))
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, "room-1", "alice", "Alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	*now = now.Add(10 * time.Second)
	alive, err := manager.Heartbeat(ctx, "room-1", "bob")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if alive {
		t.Fatalf("expected non-holder heartbeat to report not alive")
	}

	// The failed heartbeat must not have extended the lock.
	*now = now.Add(25 * time.Second)
	status, err := manager.Status(ctx, "room-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Locked {
		t.Fatalf("expected lock to be expired")
	}
}

func TestExpiredLockIsReacquirable(t *testing.T) {
	manager, now := newTestLockManager(time.Unix(1700000000, 0))
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, "room-1", "alice", "Alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	*now = now.Add(RoomLockTTL + time.Second)
	status, err := manager.Status(ctx, "room-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Locked {
		t.Fatalf("expected lock to be reported absent after TTL")
	}

	result, err := manager.Acquire(ctx, "room-1", "bob", "Bob")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !result.Acquired {
		t.Fatalf("expected acquire over an expired lock to succeed")
	}
	if result.Holder.HolderID != "bob" {
		t.Fatalf("expected bob to hold the lock, got %+v", result.Holder)
	}
}

func TestReleaseByNonHolderKeepsLock(t *testing.T) {
	manager, _ := newTestLockManager(time.Unix(1700000000, 0))
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, "room-1", "alice", "Alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := manager.Release(ctx, "room-1", "bob"); err != nil {
		t.Fatalf("release: %v", err)
	}

	status, err := manager.Status(ctx, "room-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Locked || status.Holder.HolderID != "alice" {
		t.Fatalf("expected alice to keep the lock, got %+v", status)
	}
}

func TestReleaseByHolderFreesLock(t *testing.T) {
	manager, _ := newTestLockManager(time.Unix(1700000000, 0))
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, "room-1", "alice", "Alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := manager.Release(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("release: %v", err)
	}

	status, err := manager.Status(ctx, "room-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Locked {
		t.Fatalf("expected lock to be free after release")
	}
}
