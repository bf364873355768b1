package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"

	"github.com/sorariku/liffcall/pkg/internal/models"
)

// The launcher is a black box: one POST tells it to puppet a browser into the
// room as the automated participant.
type agentLaunchRequest struct {
	Sid          string   `json:"sid"`
	RoomID       string   `json:"roomId"`
	CalleeID     string   `json:"calleeId"`
	AudioFileIDs []string `json:"audioFileIds"`
	Language     string   `json:"language"`
	CallbackURL  string   `json:"callbackUrl,omitempty"`
}

func LaunchAgent(ctx context.Context, session models.CallSession) error {
	endpoint := viper.GetString("agent.launcher_url")
	if len(endpoint) == 0 {
		return fmt.Errorf("agent launcher url is not configured")
	}

	payload, err := jsoniter.Marshal(agentLaunchRequest{
		Sid:          session.Sid,
		RoomID:       session.RoomID,
		CalleeID:     session.CalleeID,
		AudioFileIDs: session.AudioFileIDs,
		Language:     session.Language,
		CallbackURL:  viper.GetString("agent.callback_url"),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	timeout := viper.GetDuration("agent.timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("agent launcher responded with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
