package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sceneforge/internal/services"
)

func testRouter(apiKey string) *httptest.Server {
	catalog := services.NewModelCatalog("http://provider.invalid", "key")
	h := NewHandler(nil, nil, catalog, 600)
	r := NewRouter(h, RouterConfig{BackendAPIKey: apiKey})
	return httptest.NewServer(r)
}

func TestHealthIsPublic(t *testing.T) {
	server := testRouter("secret")
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	// Without a queue the depth field is omitted, never an error.
	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("health body not JSON: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("health payload = %v", payload)
	}
	if _, ok := payload["queue_depth"]; ok {
		t.Errorf("queue_depth reported with no queue wired: %v", payload)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	server := testRouter("secret")
	defer server.Close()

	// No key
	resp, err := http.Get(server.URL + "/v1/models")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", resp.StatusCode)
	}

	// Wrong key
	req, _ := http.NewRequest("GET", server.URL+"/v1/models", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", resp.StatusCode)
	}

	// Right key via X-API-Key
	req, _ = http.NewRequest("GET", server.URL+"/v1/models", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid key status = %d, want 200", resp.StatusCode)
	}

	// Right key via bearer token
	req, _ = http.NewRequest("GET", server.URL+"/v1/models", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("bearer key status = %d, want 200", resp.StatusCode)
	}
}

func TestListModels(t *testing.T) {
	server := testRouter("")
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/models")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			ID     string `json:"id"`
			Family string `json:"family"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(body.Models) != 4 {
		t.Fatalf("expected 4 models, got %d", len(body.Models))
	}
	for _, m := range body.Models {
		if m.ID == "" || m.Family == "" {
			t.Errorf("model missing id or family: %+v", m)
		}
	}
}

func TestSubmitJobValidation(t *testing.T) {
	server := testRouter("")
	defer server.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{not json`, http.StatusBadRequest},
		{"missing prompt", `{"project_id":"7f9c35e4-2c3b-4b55-9e1a-111111111111","duration_seconds":30}`, http.StatusBadRequest},
		{"missing project", `{"prompt":"a story","duration_seconds":30}`, http.StatusBadRequest},
		{"zero duration", `{"project_id":"7f9c35e4-2c3b-4b55-9e1a-111111111111","prompt":"a story","duration_seconds":0}`, http.StatusBadRequest},
		{"negative duration", `{"project_id":"7f9c35e4-2c3b-4b55-9e1a-111111111111","prompt":"a story","duration_seconds":-5}`, http.StatusBadRequest},
		{"duration over cap", `{"project_id":"7f9c35e4-2c3b-4b55-9e1a-111111111111","prompt":"a story","duration_seconds":3600}`, http.StatusBadRequest},
		{"unknown model", `{"project_id":"7f9c35e4-2c3b-4b55-9e1a-111111111111","prompt":"a story","duration_seconds":30,"model_id":"no-such-model"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/v1/jobs", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestListJobsValidation(t *testing.T) {
	server := testRouter("")
	defer server.Close()

	for _, q := range []string{"?status=bogus", "?limit=0", "?limit=x", "?offset=-1"} {
		resp, err := http.Get(server.URL + "/v1/jobs" + q)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET /v1/jobs%s status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestGetJobStatusRejectsBadID(t *testing.T) {
	server := testRouter("")
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/jobs/not-a-uuid")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
