package api

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	MapAPIs(app, "/api")
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = jsoniter.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestAiAgentLockAcquireAndConflict(t *testing.T) {
	app := newTestApp()

	status, body := postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"acquire","roomId":"lock-api-room-1","userId":"alice","userName":"Alice"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if body["acquired"] != true {
		t.Fatalf("expected acquired=true, got %v", body)
	}

	status, body = postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"acquire","roomId":"lock-api-room-1","userId":"bob","userName":"Bob"}`)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 for a held lock, got %d (%v)", status, body)
	}
	holder, _ := body["holder"].(map[string]any)
	if holder == nil || holder["holder_id"] != "alice" {
		t.Fatalf("expected holder identity in conflict response, got %v", body)
	}
}

func TestAiAgentLockStatusAndRelease(t *testing.T) {
	app := newTestApp()

	if status, body := postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"status","roomId":"lock-api-room-2"}`); status != fiber.StatusOK || body["locked"] != false {
		t.Fatalf("expected unlocked status, got %d (%v)", status, body)
	}

	postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"acquire","roomId":"lock-api-room-2","userId":"alice"}`)

	if status, body := postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"heartbeat","roomId":"lock-api-room-2","userId":"bob"}`); status != fiber.StatusOK || body["alive"] != false {
		t.Fatalf("expected non-holder heartbeat to report alive=false, got %d (%v)", status, body)
	}

	if status, _ := postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"release","roomId":"lock-api-room-2","userId":"alice"}`); status != fiber.StatusOK {
		t.Fatalf("expected release to succeed, got %d", status)
	}

	if _, body := postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"status","roomId":"lock-api-room-2"}`); body["locked"] != false {
		t.Fatalf("expected lock to be free after release, got %v", body)
	}
}

func TestAiAgentLockRejectsUnknownAction(t *testing.T) {
	app := newTestApp()

	status, _ := postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"explode","roomId":"lock-api-room-3"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown action, got %d", status)
	}
}

func TestAiAgentLockRequiresUserForAcquire(t *testing.T) {
	app := newTestApp()

	status, _ := postJSON(t, app, "/api/ai-agent-lock",
		`{"action":"acquire","roomId":"lock-api-room-4"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 when userId is missing, got %d", status)
	}
}

func TestCronEndpointsRequireSecret(t *testing.T) {
	app := newTestApp()

	for _, path := range []string{"/api/cron/execute-retries", "/api/cron/check-timeouts"} {
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		req.Header.Set("x-vercel-cron-secret", "not-the-secret")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("expected 401 from %s without a valid secret, got %d", path, resp.StatusCode)
		}
	}
}

func TestAgentCallCallbackRequiresSid(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest(fiber.MethodGet, "/api/agent-call-callback?result=SUCCESS", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 when sid is missing, got %d", resp.StatusCode)
	}
}
