package extract

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

func TestIsPrivateHost(t *testing.T) {
	private := []string{
		"localhost", "LOCALHOST", "localhost:8080",
		"127.0.0.1", "127.0.0.1:3000",
		"10.0.0.5", "192.168.1.20", "172.16.4.1",
		"0.0.0.0", "::1",
	}
	for _, h := range private {
		if !isPrivateHost(h) {
			t.Errorf("isPrivateHost(%q) = false, want true", h)
		}
	}
	public := []string{"example.com", "example.com:443", "93.184.216.34", "8.8.8.8"}
	for _, h := range public {
		if isPrivateHost(h) {
			t.Errorf("isPrivateHost(%q) = true, want false", h)
		}
	}
}

func TestValidateTarget(t *testing.T) {
	valid := []string{"https://example.com/recipe", "http://example.com"}
	for _, u := range valid {
		if _, ferr := validateTarget(u); ferr != nil {
			t.Errorf("validateTarget(%q) = %v, want nil", u, ferr)
		}
	}

	invalid := []string{
		"ftp://example.com/recipe",
		"not a url at all",
		"https://localhost/admin",
		"http://127.0.0.1:8080/",
		"https://192.168.0.1/router",
		"//missing-scheme.example.com",
	}
	for _, u := range invalid {
		_, ferr := validateTarget(u)
		if ferr == nil {
			t.Errorf("validateTarget(%q) = nil, want error", u)
			continue
		}
		if ferr.Code != model.ErrCodeInvalidURL {
			t.Errorf("validateTarget(%q) code = %q, want %q", u, ferr.Code, model.ErrCodeInvalidURL)
		}
	}
}

func TestFetchRejectsInvalidTarget(t *testing.T) {
	f := NewFetcher("test-agent", "", zap.NewNop())
	_, ferr := f.Fetch(context.Background(), "https://localhost/secret")
	if ferr == nil || ferr.Code != model.ErrCodeInvalidURL {
		t.Errorf("ferr = %+v, want %s", ferr, model.ErrCodeInvalidURL)
	}
}

func TestPreflightRejectsInvalidTarget(t *testing.T) {
	f := NewFetcher("test-agent", "", zap.NewNop())
	result := f.Preflight(context.Background(), "ftp://example.com/x")
	if result.OK {
		t.Fatal("expected preflight failure")
	}
	if result.ErrorCode != model.ErrCodeInvalidURL {
		t.Errorf("code = %q, want %q", result.ErrorCode, model.ErrCodeInvalidURL)
	}
}

func TestDecodeBody(t *testing.T) {
	t.Run("plain utf8", func(t *testing.T) {
		text, err := decodeBody([]byte("<html><body>café</body></html>"), "text/html; charset=utf-8")
		if err != nil {
			t.Fatalf("decodeBody: %v", err)
		}
		if text != "<html><body>café</body></html>" {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("latin1 charset header", func(t *testing.T) {
		// "café" with an ISO-8859-1 encoded é (0xE9).
		body := []byte{'c', 'a', 'f', 0xE9}
		text, err := decodeBody(body, "text/html; charset=iso-8859-1")
		if err != nil {
			t.Fatalf("decodeBody: %v", err)
		}
		if text != "café" {
			t.Errorf("text = %q, want café", text)
		}
	})
}

func TestValidHTMLSample(t *testing.T) {
	if !validHTMLSample(`<html><body><p>Recipe content here.</p></body></html>`) {
		t.Error("ordinary HTML failed validation")
	}
	if validHTMLSample("no tags whatsoever, just prose") {
		t.Error("tagless text passed validation")
	}
	junk := "<p>" + string(make([]byte, 500)) + "</p>"
	if validHTMLSample(junk) {
		t.Error("NUL-heavy sample passed validation")
	}
}

func TestFetchErrorString(t *testing.T) {
	e := &FetchError{Code: model.ErrCodeFetchFailed, Message: "site returned status 500"}
	if e.Error() != "fetch_failed: site returned status 500" {
		t.Errorf("Error() = %q", e.Error())
	}
}
