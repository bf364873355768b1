package services

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gorm.io/gorm/clause"
	"gorm.io/gorm"

	"github.com/sorariku/liffcall/pkg/internal/database"
	"github.com/sorariku/liffcall/pkg/internal/models"
)

var (
	ErrNoSubscription   = errors.New("no push subscription for this account")
	ErrSubscriptionGone = errors.New("push subscription is gone")
)

func SavePushSubscription(accountID, endpoint, authKey, p256dhKey string) (models.PushSubscription, error) {
	subscription := models.PushSubscription{
		AccountID: accountID,
		Endpoint:  endpoint,
		AuthKey:   authKey,
		P256dhKey: p256dhKey,
	}

	err := database.C.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"endpoint", "auth_key", "p256dh_key", "updated_at"}),
	}).Create(&subscription).Error

	return subscription, err
}

func GetPushSubscription(accountID string) (models.PushSubscription, error) {
	var subscription models.PushSubscription
	if err := database.C.Where("account_id = ?", accountID).First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return subscription, ErrNoSubscription
		}
		return subscription, err
	}
	return subscription, nil
}

// SendIncomingCallPush delivers a browser push to the account. When the
// transport reports the endpoint gone (404/410), the subscription row gets
// deleted before the error returns, so the next lookup finds nothing.
func SendIncomingCallPush(sid, accountID string, payload map[string]any) error {
	err := sendWebPush(accountID, payload)
	recordNotification(sid, accountID, "push", fmt.Sprint(payload["type"]), err)
	return err
}

func sendWebPush(accountID string, payload map[string]any) error {
	subscription, err := GetPushSubscription(accountID)
	if err != nil {
		return err
	}

	body, err := jsoniter.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: subscription.Endpoint,
		Keys: webpush.Keys{
			Auth:   subscription.AuthKey,
			P256dh: subscription.P256dhKey,
		},
	}, &webpush.Options{
		Subscriber:      viper.GetString("push.subscriber"),
		VAPIDPublicKey:  viper.GetString("push.vapid_public_key"),
		VAPIDPrivateKey: viper.GetString("push.vapid_private_key"),
		TTL:             60,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := database.C.Unscoped().
			Where("account_id = ?", accountID).
			Delete(&models.PushSubscription{}).Error; err != nil {
			log.Warn().Err(err).Str("account", accountID).Msg("An error occurred when deleting a gone subscription.")
		}
		return ErrSubscriptionGone
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push transport responded with status %d", resp.StatusCode)
	}

	return nil
}

// SendLineMessage pushes a text message on the LINE channel. A fresh channel
// access token is fetched for every send.
func SendLineMessage(to, text string) error {
	token, err := IssueChannelToken()
	if err != nil {
		return err
	}

	bot, err := linebot.New(viper.GetString("line.channel_secret"), token.AccessToken)
	if err != nil {
		return err
	}

	_, err = bot.PushMessage(to, linebot.NewTextMessage(text)).Do()
	return err
}

// SendRoomInvite sends the LIFF deep link into a room over LINE.
func SendRoomInvite(to, roomID, inviterName string) error {
	liff := strings.TrimRight(viper.GetString("line.liff_url"), "/")
	if len(liff) == 0 {
		return fmt.Errorf("line liff url is not configured")
	}
	link := fmt.Sprintf("%s?room=%s", liff, url.QueryEscape(roomID))

	text := fmt.Sprintf("You are invited to a call: %s", link)
	if len(inviterName) > 0 {
		text = fmt.Sprintf("%s is inviting you to a call: %s", inviterName, link)
	}

	err := SendLineMessage(to, text)
	recordNotification("", to, "line", "call.invite", err)
	return err
}

// SendMissedCallNotice notifies the callee after a ring timeout. The LINE
// message is best effort on top of the push; its failure never bubbles.
func SendMissedCallNotice(session models.CallSession) error {
	err := SendIncomingCallPush(session.Sid, session.CalleeID, map[string]any{
		"type":      "missed_call",
		"sid":       session.Sid,
		"room_id":   session.RoomID,
		"caller_id": session.CallerID,
	})

	if lineErr := SendLineMessage(session.CalleeID, "You missed a call. Tap to call back."); lineErr != nil {
		log.Warn().Err(lineErr).Str("sid", session.Sid).Msg("An error occurred when sending the missed-call LINE message.")
	}

	return err
}

func recordNotification(sid, accountID, channel, topic string, sendErr error) {
	notification := models.CallNotification{
		Sid:       sid,
		AccountID: accountID,
		Channel:   channel,
		Topic:     topic,
		Succeeded: sendErr == nil,
	}
	if sendErr != nil {
		notification.Detail = lo.ToPtr(sendErr.Error())
	}
	if err := database.C.Create(&notification).Error; err != nil {
		log.Warn().Err(err).Str("account", accountID).Msg("An error occurred when recording a notification.")
	}
}
