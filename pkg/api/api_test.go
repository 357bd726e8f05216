package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aqueductflow/aqueduct/pkg/secrets"
)

func setupTestServer(t *testing.T) (*Server, *secrets.Store) {
	t.Helper()
	store := secrets.NewStore()
	store.Put("prod", "api", "KEY", "v")
	store.GrantOAuth("github", secrets.GrantService)
	return New(store), store
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("bad response body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestEvaluateEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	status, body := postJSON(t, s, "/v1/expressions/evaluate", map[string]interface{}{
		"expression": "FN.add(INPUTS.arg1, 1)",
		"operand": map[string]interface{}{
			"INPUTS": map[string]interface{}{"arg1": 41},
		},
	})
	if status != 200 {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["result"] != float64(42) {
		t.Errorf("result = %v, want 42", body["result"])
	}
}

func TestEvaluateEndpointPreservesTypes(t *testing.T) {
	s, _ := setupTestServer(t)

	status, body := postJSON(t, s, "/v1/expressions/evaluate", map[string]interface{}{
		"expression": "ACTIONS.scan.result",
		"operand": map[string]interface{}{
			"ACTIONS": map[string]interface{}{
				"scan": map[string]interface{}{"result": []interface{}{1, 2}},
			},
		},
	})
	if status != 200 {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	result, ok := body["result"].([]interface{})
	if !ok || len(result) != 2 {
		t.Errorf("result = %v, want a 2-element list", body["result"])
	}
}

func TestEvaluateEndpointErrors(t *testing.T) {
	s, _ := setupTestServer(t)

	t.Run("parse error", func(t *testing.T) {
		status, _ := postJSON(t, s, "/v1/expressions/evaluate", map[string]interface{}{
			"expression": "1 +",
		})
		if status != 400 {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("no match in strict mode", func(t *testing.T) {
		status, body := postJSON(t, s, "/v1/expressions/evaluate", map[string]interface{}{
			"expression": "ACTIONS.missing.result",
			"operand":    map[string]interface{}{"ACTIONS": map[string]interface{}{}},
		})
		if status != 422 {
			t.Fatalf("status = %d, want 422: %v", status, body)
		}
	})

	t.Run("no match in non-strict mode", func(t *testing.T) {
		status, body := postJSON(t, s, "/v1/expressions/evaluate", map[string]interface{}{
			"expression": "ACTIONS.missing.result",
			"operand":    map[string]interface{}{"ACTIONS": map[string]interface{}{}},
			"non_strict": true,
		})
		if status != 200 {
			t.Fatalf("status = %d, want 200: %v", status, body)
		}
		if body["result"] != nil {
			t.Errorf("result = %v, want null", body["result"])
		}
	})

	t.Run("missing expression", func(t *testing.T) {
		status, _ := postJSON(t, s, "/v1/expressions/evaluate", map[string]interface{}{})
		if status != 400 {
			t.Errorf("status = %d, want 400", status)
		}
	})
}

func TestValidateEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	status, body := postJSON(t, s, "/v1/expressions/validate", map[string]interface{}{
		"expressions": []string{
			"ACTIONS.webhook.result",
			"SECRETS.missing_secret.KEY",
		},
		"action_refs": []string{"webhook"},
		"environment": "prod",
	})
	if status != 200 {
		t.Fatalf("status = %d, body = %v", status, body)
	}

	results, ok := body["results"].([]interface{})
	if !ok || len(results) == 0 {
		t.Fatalf("results = %v", body["results"])
	}

	foundMissing := false
	for _, r := range results {
		entry := r.(map[string]interface{})
		if entry["status"] == "error" {
			msg, _ := entry["message"].(string)
			if strings.Contains(msg, "missing_secret") {
				foundMissing = true
			}
		}
	}
	if !foundMissing {
		t.Errorf("no error naming missing_secret in %v", results)
	}
}

func TestTemplateSecretsEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	status, body := postJSON(t, s, "/v1/templates/secrets", map[string]interface{}{
		"document": map[string]interface{}{
			"auth":  "${{ SECRETS.api.KEY }}",
			"oauth": "${{ SECRETS.github_oauth.GITHUB_SERVICE_TOKEN }}",
			"doc":   "${{ 'literal SECRETS.fake.KEY' }}",
		},
	})
	if status != 200 {
		t.Fatalf("status = %d, body = %v", status, body)
	}

	secretsOut, _ := body["secrets"].([]interface{})
	if len(secretsOut) != 1 || secretsOut[0] != "api.KEY" {
		t.Errorf("secrets = %v, want [api.KEY]", secretsOut)
	}
	oauthOut, _ := body["oauth"].([]interface{})
	if len(oauthOut) != 1 || oauthOut[0] != "github:service" {
		t.Errorf("oauth = %v, want [github:service]", oauthOut)
	}
}

func TestSecretSeedingEndpoints(t *testing.T) {
	s, store := setupTestServer(t)

	status, _ := postJSON(t, s, "/v1/secrets", map[string]interface{}{
		"environment": "dev",
		"name":        "db",
		"key":         "PASSWORD",
		"value":       "hunter2",
	})
	if status != 201 {
		t.Fatalf("put secret status = %d, want 201", status)
	}
	if v, ok := store.Get("dev", "db", "PASSWORD"); !ok || v != "hunter2" {
		t.Errorf("stored secret = (%q, %v)", v, ok)
	}

	status, _ = postJSON(t, s, "/v1/oauth/grants", map[string]interface{}{
		"provider": "slack",
		"grant":    "user",
	})
	if status != 201 {
		t.Fatalf("put grant status = %d, want 201", status)
	}

	status, _ = postJSON(t, s, "/v1/oauth/grants", map[string]interface{}{
		"provider": "slack",
		"grant":    "bogus",
	})
	if status != 400 {
		t.Errorf("bad grant status = %d, want 400", status)
	}
}
