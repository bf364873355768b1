package services

import (
	"context"
	"errors"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// RoomLockTTL is how long a lock survives without a heartbeat before any
// status read treats it as absent.
const RoomLockTTL = 30 * time.Second

// RoomLock marks who currently drives the AI agent in a room. It is advisory:
// it guards a UI affordance, not data integrity, so losing it on restart is
// acceptable.
type RoomLock struct {
	RoomID        string    `json:"room_id"`
	HolderID      string    `json:"holder_id"`
	HolderName    string    `json:"holder_name"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// LockStore is the keyed storage behind the lock manager, so a shared cache
// can replace the in-memory map in multi-process deployments.
type LockStore interface {
	Get(ctx context.Context, roomID string) (RoomLock, bool, error)
	Put(ctx context.Context, lock RoomLock) error
	Delete(ctx context.Context, roomID string) error
}

type LockStatus struct {
	Locked bool      `json:"locked"`
	Holder *RoomLock `json:"holder,omitempty"`
}

type AcquireResult struct {
	Acquired bool      `json:"acquired"`
	Holder   *RoomLock `json:"holder,omitempty"`
}

type LockManager struct {
	store LockStore
	clock func() time.Time
}

var Locks = NewLockManager(NewMemoryLockStore())

func NewLockManager(store LockStore) *LockManager {
	return &LockManager{store: store, clock: time.Now}
}

// SetupLockStore swaps the default in-memory store for Redis when a URI is
// configured. The TTL and holder contracts are identical across both.
func SetupLockStore() {
	uri := viper.GetString("lock.redis_uri")
	if len(uri) == 0 {
		return
	}

	store, err := NewRedisLockStore(uri)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when connecting to redis lock store, keeping in-memory locks...")
		return
	}

	Locks = NewLockManager(store)
	log.Info().Msg("Room locks are backed by redis.")
}

func (m *LockManager) active(lock RoomLock) bool {
	return m.clock().Sub(lock.LastHeartbeat) <= RoomLockTTL
}

func (m *LockManager) Status(ctx context.Context, roomID string) (LockStatus, error) {
	lock, ok, err := m.store.Get(ctx, roomID)
	if err != nil {
		return LockStatus{}, err
	}
	if !ok {
		return LockStatus{Locked: false}, nil
	}
	if !m.active(lock) {
		// Lazy expiry; a failed purge only delays the next one.
		if err := m.store.Delete(ctx, roomID); err != nil {
			log.Warn().Err(err).Str("room", roomID).Msg("An error occurred when purging an expired room lock.")
		}
		return LockStatus{Locked: false}, nil
	}
	return LockStatus{Locked: true, Holder: &lock}, nil
}

// Acquire grants the lock when it is free or expired. A re-acquire by the
// current holder counts as a heartbeat and still reports acquired.
func (m *LockManager) Acquire(ctx context.Context, roomID, userID, userName string) (AcquireResult, error) {
	lock, ok, err := m.store.Get(ctx, roomID)
	if err != nil {
		return AcquireResult{}, err
	}
	if ok && m.active(lock) && lock.HolderID != userID {
		return AcquireResult{Acquired: false, Holder: &lock}, nil
	}

	next := RoomLock{
		RoomID:        roomID,
		HolderID:      userID,
		HolderName:    userName,
		LastHeartbeat: m.clock(),
	}
	if err := m.store.Put(ctx, next); err != nil {
		return AcquireResult{}, err
	}
	return AcquireResult{Acquired: true, Holder: &next}, nil
}

// Heartbeat refreshes the lock only for the current holder; anyone else gets
// told the lock is not theirs, with no side effect.
func (m *LockManager) Heartbeat(ctx context.Context, roomID, userID string) (bool, error) {
	lock, ok, err := m.store.Get(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !ok || !m.active(lock) || lock.HolderID != userID {
		return false, nil
	}

	lock.LastHeartbeat = m.clock()
	if err := m.store.Put(ctx, lock); err != nil {
		return false, err
	}
	return true, nil
}

// Release deletes the lock when the caller holds it. It always succeeds from
// the caller's perspective.
func (m *LockManager) Release(ctx context.Context, roomID, userID string) error {
	lock, ok, err := m.store.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if ok && lock.HolderID == userID {
		return m.store.Delete(ctx, roomID)
	}
	return nil
}

type memoryLockStore struct {
	mutex sync.Mutex
	locks map[string]RoomLock
}

func NewMemoryLockStore() LockStore {
	return &memoryLockStore{locks: make(map[string]RoomLock)}
}

func (s *memoryLockStore) Get(_ context.Context, roomID string) (RoomLock, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	lock, ok := s.locks[roomID]
	return lock, ok, nil
}

func (s *memoryLockStore) Put(_ context.Context, lock RoomLock) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.locks[lock.RoomID] = lock
	return nil
}

func (s *memoryLockStore) Delete(_ context.Context, roomID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.locks, roomID)
	return nil
}

type redisLockStore struct {
	client *redis.Client
}

func NewRedisLockStore(uri string) (LockStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}
	return &redisLockStore{client: redis.NewClient(opts)}, nil
}

func lockKey(roomID string) string {
	return "room_lock:" + roomID
}

func (s *redisLockStore) Get(ctx context.Context, roomID string) (RoomLock, bool, error) {
	var lock RoomLock
	raw, err := s.client.Get(ctx, lockKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return lock, false, nil
	} else if err != nil {
		return lock, false, err
	}
	if err := jsoniter.Unmarshal(raw, &lock); err != nil {
		return lock, false, err
	}
	return lock, true, nil
}

func (s *redisLockStore) Put(ctx context.Context, lock RoomLock) error {
	raw, err := jsoniter.Marshal(lock)
	if err != nil {
		return err
	}
	// Key expiry gets slack on top of the TTL; heartbeat age, not redis,
	// decides liveness.
	return s.client.Set(ctx, lockKey(lock.RoomID), raw, RoomLockTTL*2).Err()
}

func (s *redisLockStore) Delete(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, lockKey(roomID)).Err()
}
