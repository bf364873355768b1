package services

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultChannelTokenEndpoint = "https://api.line.me/oauth2/v2.1/token"

// EncodeConferenceToken builds the compact join credential for the external
// conferencing provider. The claim set stays at sub/uid/iss/iat; the provider
// rejects oversized tokens, so the room binding travels in the join request
// instead of the token.
func EncodeConferenceToken(serviceID, apiKey, userID, roomID, apiSecret string) (string, error) {
	secret := apiSecret
	if len(secret) == 0 {
		log.Warn().Str("service", serviceID).Msg("Conference API secret is not set, signing with the API key instead. Never do this in production.")
		secret = apiKey
	}

	log.Debug().Str("service", serviceID).Str("user", userID).Str("room", roomID).Msg("Encoding conference token...")

	claims := jwt.MapClaims{
		"sub": serviceID,
		"uid": userID,
		"iss": apiKey,
		"iat": time.Now().Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// EncodeRoomToken issues a LiveKit join token, used when the configured
// provider is livekit.
func EncodeRoomToken(identity, name, roomID string, admin bool) (string, error) {
	grant := &auth.VideoGrant{
		Room:      roomID,
		RoomJoin:  true,
		RoomAdmin: admin,
	}

	duration := time.Second * time.Duration(viper.GetInt("calling.token_duration"))
	if duration <= 0 {
		duration = time.Hour
	}

	tk := auth.NewAccessToken(viper.GetString("calling.api_key"), viper.GetString("calling.api_secret"))
	tk.AddGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(duration)

	return tk.ToJWT()
}

type ChannelToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// BuildChannelAssertion signs the client assertion for the LINE channel token
// exchange: issuer and subject are the channel id, audience is the token
// endpoint, valid for thirty minutes.
func BuildChannelAssertion(channelID, channelSecret, audience string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": channelID,
		"sub": channelID,
		"aud": audience,
		"exp": now.Add(30 * time.Minute).Unix(),
		"iat": now.Unix(),
		"jti": uuid.NewString(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(channelSecret))
}

// IssueChannelToken exchanges a signed assertion for a bearer token at the
// LINE OAuth endpoint. Tokens are not cached; every send re-authenticates.
func IssueChannelToken() (ChannelToken, error) {
	var token ChannelToken

	channelID := viper.GetString("line.channel_id")
	channelSecret := viper.GetString("line.channel_secret")
	if len(channelID) == 0 || len(channelSecret) == 0 {
		return token, fmt.Errorf("line channel credentials are not configured")
	}

	endpoint := viper.GetString("line.channel_token_endpoint")
	if len(endpoint) == 0 {
		endpoint = defaultChannelTokenEndpoint
	}

	assertion, err := BuildChannelAssertion(channelID, channelSecret, endpoint, time.Now())
	if err != nil {
		return token, fmt.Errorf("unable to sign channel assertion: %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
	form.Set("client_assertion", assertion)

	resp, err := http.PostForm(endpoint, form)
	if err != nil {
		return token, fmt.Errorf("channel token exchange failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return token, fmt.Errorf("channel token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := jsoniter.Unmarshal(body, &token); err != nil {
		return token, fmt.Errorf("unable to decode channel token response: %v", err)
	}

	return token, nil
}
