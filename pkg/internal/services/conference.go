package services

import (
	"context"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var Lk *lksdk.RoomServiceClient

func SetupLiveKit() {
	endpoint := viper.GetString("calling.endpoint")
	if len(endpoint) == 0 {
		log.Warn().Msg("Conference endpoint is not configured, room management is disabled.")
		return
	}

	Lk = lksdk.NewRoomServiceClient(
		"https://"+endpoint,
		viper.GetString("calling.api_key"),
		viper.GetString("calling.api_secret"),
	)
}

func CreateConferenceRoom(ctx context.Context, roomID string) error {
	if Lk == nil {
		return nil
	}

	_, err := Lk.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            roomID,
		EmptyTimeout:    viper.GetUint32("calling.empty_timeout_duration"),
		MaxParticipants: viper.GetUint32("calling.max_participants"),
	})
	return err
}

func CloseConferenceRoom(ctx context.Context, roomID string) {
	if Lk == nil {
		return
	}

	if _, err := Lk.DeleteRoom(ctx, &livekit.DeleteRoomRequest{
		Room: roomID,
	}); err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("Unable to delete room at conference provider side")
	}
}

func ListRoomParticipants(ctx context.Context, roomID string) ([]*livekit.ParticipantInfo, error) {
	if Lk == nil {
		return nil, nil
	}

	res, err := Lk.ListParticipants(ctx, &livekit.ListParticipantsRequest{
		Room: roomID,
	})
	if err != nil {
		return nil, err
	}
	return res.Participants, nil
}
