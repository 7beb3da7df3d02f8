package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/store/memory"
)

func newTestServer(t *testing.T, opts ...humanizer.Option) *httptest.Server {
	t.Helper()

	engine := humanizer.New(memory.New(), opts...)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() {
		if err := engine.Stop(); err != nil {
			t.Errorf("stop engine: %v", err)
		}
	})

	srv := httptest.NewServer(newHandler(engine, slog.Default(), 1000, 1000))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

func TestHumanizeEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/v1/humanize",
		`{"user_id":"user_1","text":"We should utilize this.","level":"medium"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if body["result"] == "" {
		t.Error("expected transformed result")
	}
	if body["credits_charged"].(float64) != 1 {
		t.Errorf("credits_charged: got %v, want 1", body["credits_charged"])
	}
}

func TestHumanizeEndpointErrors(t *testing.T) {
	srv := newTestServer(t, humanizer.WithCostFunc(humanizer.FlatCost(101)))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "empty input",
			body:       `{"user_id":"user_1","text":"   ","level":"light"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "empty_input",
		},
		{
			name:       "invalid level",
			body:       `{"user_id":"user_1","text":"hi","level":"extreme"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "invalid_level",
		},
		{
			name:       "insufficient credits",
			body:       `{"user_id":"user_1","text":"Some text.","level":"light"}`,
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "insufficient_credits",
		},
		{
			name:       "malformed json",
			body:       `{"user_id":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, srv.URL+"/v1/humanize", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if code := errorCode(t, body); code != tt.wantCode {
				t.Errorf("code: got %q, want %q", code, tt.wantCode)
			}
		})
	}

	// empty_input must be checked before the credit gate: no balance was
	// touched, and the account still affords nothing
	resp, body := postJSON(t, srv.URL+"/v1/humanize",
		`{"user_id":"user_1","text":"","level":"light"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || errorCode(t, body) != "empty_input" {
		t.Errorf("got %d %v, want 422 empty_input", resp.StatusCode, body)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/balance?user_id=user_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["balance"].(float64) != 100 || body["tier"] != "free" {
		t.Errorf("got balance=%v tier=%v, want 100/free", body["balance"], body["tier"])
	}
}

func TestPlanAndGrantEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/v1/plan", `{"user_id":"user_1","tier":"basic"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set plan: got %d, want 200", resp.StatusCode)
	}
	if body["ceiling"].(float64) != 500 {
		t.Errorf("ceiling: got %v, want 500", body["ceiling"])
	}

	resp, body = postJSON(t, srv.URL+"/v1/plan", `{"user_id":"user_1","tier":"platinum"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || errorCode(t, body) != "unknown_tier" {
		t.Errorf("unknown tier: got %d %v", resp.StatusCode, body)
	}

	resp, body = postJSON(t, srv.URL+"/v1/credits/grant", `{"user_id":"user_1","amount":-1}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || errorCode(t, body) != "invalid_amount" {
		t.Errorf("invalid amount: got %d %v", resp.StatusCode, body)
	}
}

func TestProjectEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/v1/projects",
		`{"user_id":"user_1","title":"Draft","text":"original","result":"rewritten"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: got %d, want 201", resp.StatusCode)
	}
	projID, _ := body["id"].(string)
	if !strings.HasPrefix(projID, "proj_") {
		t.Fatalf("project id: got %q", projID)
	}

	resp, _ = postJSON(t, srv.URL+"/v1/projects/"+projID+"/favorite", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("favorite: got %d, want 200", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/projects/"+projID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: got %d, want 204", delResp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/v1/projects/" + projID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted: got %d, want 404", getResp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	engine := humanizer.New(memory.New())
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	defer engine.Stop() //nolint:errcheck // test cleanup

	srv := httptest.NewServer(newHandler(engine, slog.Default(), 1, 2))
	defer srv.Close()

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/v1/balance?user_id=user_1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected a rate-limited response after burst exhaustion")
	}
}
