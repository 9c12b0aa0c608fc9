package e2e

import (
	"encoding/json"
	"testing"
)

const e2eJSONLDBlock = `{
	"@context": "https://schema.org",
	"@type": "Recipe",
	"name": "Overnight Oats",
	"recipeYield": "2 servings",
	"totalTime": "PT5M",
	"recipeIngredient": ["1 cup rolled oats", "1 cup milk", "1 tablespoon honey"],
	"recipeInstructions": [
		{"@type": "HowToStep", "text": "Combine everything in a jar."},
		{"@type": "HowToStep", "text": "Refrigerate overnight."}
	]
}`

func TestIngestRequiresAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/recipes/ingest",
		`{"source_type":"client_webview"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 401)
}

func TestIngestValidation(t *testing.T) {
	ta := setupApp(t)

	t.Run("missing source type", func(t *testing.T) {
		resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/ingest", `{}`)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, 400)
	})

	t.Run("unknown source type", func(t *testing.T) {
		resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/ingest",
			`{"source_type":"fax"}`)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, 400)
	})

	t.Run("invalid body", func(t *testing.T) {
		resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/ingest", `{not json`)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, 400)
	})
}

func TestIngestWebviewJSONLD(t *testing.T) {
	ta := setupApp(t)

	body, _ := json.Marshal(map[string]interface{}{
		"source_type":   "client_webview",
		"source_url":    "https://example.com/oats",
		"jsonld_blocks": []string{e2eJSONLDBlock},
	})
	resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/ingest", string(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["success"] != true {
		t.Fatalf("expected success, got %v", result)
	}
	if result["parser_strategy"] != "client_json_ld" {
		t.Errorf("parser_strategy = %v", result["parser_strategy"])
	}
	recipe, ok := result["recipe"].(map[string]interface{})
	if !ok {
		t.Fatal("expected recipe in response")
	}
	if recipe["title"] != "Overnight Oats" {
		t.Errorf("title = %v", recipe["title"])
	}
	ingredients, _ := recipe["ingredients"].([]interface{})
	if len(ingredients) != 3 {
		t.Errorf("ingredients = %d, want 3", len(ingredients))
	}
}

func TestIngestWebviewNoRecipe(t *testing.T) {
	ta := setupApp(t)

	body, _ := json.Marshal(map[string]interface{}{
		"source_type":  "client_webview",
		"html_snippet": "<html><body><p>Nothing edible on this page.</p></body></html>",
	})
	resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/ingest", string(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// Synchronous parse failures come back as a 200 ParseResult with
	// success false, not an HTTP error.
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["success"] != false {
		t.Errorf("expected success=false, got %v", result["success"])
	}
	if result["error_code"] != "invalid_payload" {
		t.Errorf("error_code = %v", result["error_code"])
	}
}

func TestImportURLRejectsPrivateHost(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/import/url",
		`{"source_url":"http://localhost:8080/recipe"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// Preflight fails without creating a job; the diagnosis comes back 422.
	assertStatus(t, resp, 422)

	result := parseJSON(t, resp)
	if result["ok"] != false {
		t.Errorf("expected ok=false, got %v", result)
	}
	if result["error_code"] != "invalid_url" {
		t.Errorf("error_code = %v", result["error_code"])
	}
}

func TestPreflightInvalidURL(t *testing.T) {
	ta := setupApp(t)

	t.Run("not a url", func(t *testing.T) {
		resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/import/preflight",
			`{"source_url":"not a url"}`)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		// Fails request validation before the fetcher runs.
		assertStatus(t, resp, 400)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/import/preflight",
			`{"source_url":"ftp://example.com/x"}`)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		// Passes the url format check but the fetcher only speaks http(s).
		assertStatus(t, resp, 200)

		result := parseJSON(t, resp)
		if result["ok"] != false {
			t.Errorf("expected ok=false, got %v", result)
		}
		if result["error_code"] != "invalid_url" {
			t.Errorf("error_code = %v", result["error_code"])
		}
	})
}

func TestPreflightPrivateHost(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, "POST", "/api/recipes/import/preflight",
		`{"source_url":"https://192.168.1.1/admin"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["ok"] != false {
		t.Errorf("expected ok=false, got %v", result)
	}
	if result["error_code"] != "invalid_url" {
		t.Errorf("error_code = %v", result["error_code"])
	}
}
