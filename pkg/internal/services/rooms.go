package services

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/sorariku/liffcall/pkg/internal/database"
	"github.com/sorariku/liffcall/pkg/internal/models"
)

// RecentActivityWindow keeps a room visible shortly after its last event even
// when nobody is left in it.
const RecentActivityWindow = 5 * time.Minute

type RoomParticipant struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	JoinedAt time.Time `json:"joined_at"`
}

type RoomState struct {
	RoomID           string            `json:"room_id"`
	CallStartTime    *time.Time        `json:"call_start_time,omitempty"`
	LastActivity     time.Time         `json:"last_activity"`
	Ended            bool              `json:"ended"`
	Participants     []RoomParticipant `json:"participants"`
	ParticipantCount int               `json:"participant_count"`
}

// ReplayRoomStates folds conference events, in occurrence order, into
// per-room states. It is the only source of the active-room view; nothing is
// persisted about rooms themselves.
func ReplayRoomStates(events []models.ConferenceEvent) map[string]*RoomState {
	states := make(map[string]*RoomState)

	for _, event := range events {
		state, ok := states[event.RoomID]
		if !ok {
			state = &RoomState{RoomID: event.RoomID}
			states[event.RoomID] = state
		}
		if event.OccurredAt.After(state.LastActivity) {
			state.LastActivity = event.OccurredAt
		}

		switch event.Type {
		case models.RoomEventStart:
			if state.CallStartTime == nil {
				state.CallStartTime = lo.ToPtr(event.OccurredAt)
			}
		case models.RoomEventEnd:
			state.Ended = true
			state.Participants = nil
		case models.RoomEventJoin:
			already := lo.ContainsBy(state.Participants, func(p RoomParticipant) bool {
				return p.UserID == event.UserID
			})
			if !already {
				state.Participants = append(state.Participants, RoomParticipant{
					UserID:   event.UserID,
					UserName: event.UserName,
					JoinedAt: event.OccurredAt,
				})
			}
		case models.RoomEventLeave:
			state.Participants = lo.Reject(state.Participants, func(p RoomParticipant, _ int) bool {
				return p.UserID == event.UserID
			})
		}
	}

	for _, state := range states {
		state.ParticipantCount = len(state.Participants)
	}

	return states
}

// FilterActiveRooms keeps rooms that have not ended and either still hold
// participants or saw activity within the recent window.
func FilterActiveRooms(states map[string]*RoomState, now time.Time, recentWindow time.Duration) []RoomState {
	var rooms []RoomState
	for _, state := range states {
		if state.Ended {
			continue
		}
		if state.ParticipantCount == 0 && now.Sub(state.LastActivity) > recentWindow {
			continue
		}
		rooms = append(rooms, *state)
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastActivity.After(rooms[j].LastActivity)
	})
	return rooms
}

func ListActiveRooms(minutes int) ([]RoomState, error) {
	if minutes <= 0 {
		minutes = 60
	}
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)

	var events []models.ConferenceEvent
	if err := database.C.
		Where("occurred_at >= ?", since).
		Order("occurred_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}

	return FilterActiveRooms(ReplayRoomStates(events), time.Now(), RecentActivityWindow), nil
}

type CallPeer struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ListCallHistory returns the distinct people who shared a room with the user
// within the window, most recent first.
func ListCallHistory(userID string, days int) ([]CallPeer, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	var roomIDs []string
	if err := database.C.Model(&models.ConferenceEvent{}).
		Where("user_id = ? AND type = ? AND occurred_at >= ?", userID, models.RoomEventJoin, since).
		Distinct().
		Pluck("room_id", &roomIDs).Error; err != nil {
		return nil, err
	}
	if len(roomIDs) == 0 {
		return []CallPeer{}, nil
	}

	var peers []CallPeer
	if err := database.C.Model(&models.ConferenceEvent{}).
		Select("user_id, MAX(user_name) AS user_name, MAX(occurred_at) AS last_seen_at").
		Where("room_id IN ? AND type = ? AND user_id <> ? AND occurred_at >= ?", roomIDs, models.RoomEventJoin, userID, since).
		Group("user_id").
		Order("last_seen_at DESC").
		Scan(&peers).Error; err != nil {
		return nil, err
	}

	return peers, nil
}
