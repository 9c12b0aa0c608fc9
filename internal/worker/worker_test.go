package worker

import (
	"errors"
	"testing"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

func newPolicyWorker(maxAttempts int) *Worker {
	return New(Config{MaxAttempts: maxAttempts})
}

func TestShouldRetry(t *testing.T) {
	w := newPolicyWorker(3)
	webview := "webview_extract"
	empty := ""

	tests := []struct {
		name       string
		code       string
		attempts   int
		nextAction *string
		want       bool
	}{
		{"llm timeout first attempt", model.ErrCodeLLMTimeout, 1, nil, true},
		{"llm failed second attempt", model.ErrCodeLLMFailed, 2, nil, true},
		{"fetch failed first attempt", model.ErrCodeFetchFailed, 1, nil, true},
		{"fetch timeout first attempt", model.ErrCodeFetchTimeout, 1, nil, true},
		{"attempts exhausted", model.ErrCodeLLMTimeout, 3, nil, false},
		{"over budget", model.ErrCodeLLMTimeout, 4, nil, false},
		{"terminal code", model.ErrCodeEncodingError, 1, nil, false},
		{"quality gate is terminal", model.ErrCodeQualityGateFailed, 1, nil, false},
		{"next action blocks retry", model.ErrCodeFetchFailed, 1, &webview, false},
		{"empty next action does not block", model.ErrCodeFetchFailed, 1, &empty, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.shouldRetry(tt.code, tt.attempts, tt.nextAction); got != tt.want {
				t.Errorf("shouldRetry(%s, %d) = %v, want %v", tt.code, tt.attempts, got, tt.want)
			}
		})
	}
}

func TestErrorCodeFromErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"llm timeout prefix", errors.New("llm_timeout: model call timed out"), model.ErrCodeLLMTimeout},
		{"llm failed prefix", errors.New("llm_failed: model declined structuring"), model.ErrCodeLLMFailed},
		{"draft validation prefix", errors.New("draft_validation_failed: missing fields"), model.ErrCodeDraftValidationFailed},
		{"content corrupted prefix", errors.New("content_corrupted: binary junk"), model.ErrCodeContentCorrupted},
		{"unknown prefix falls back", errors.New("redis: connection refused"), model.ErrCodeWorkerError},
		{"no prefix falls back", errors.New("something broke"), model.ErrCodeWorkerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCodeFromErr(tt.err, model.ErrCodeWorkerError); got != tt.want {
				t.Errorf("errorCodeFromErr(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare json", `{"selections": []}`, `{"selections": []}`},
		{"json fence", "```json\n{\"selections\": []}\n```", `{"selections": []}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", `Sure thing: {"a":1} done`, `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.input); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-0.5, 0}, {0, 0}, {0.7, 0.7}, {1, 1}, {3.2, 1},
	}
	for _, tt := range tests {
		if got := clampConfidence(tt.in); got != tt.want {
			t.Errorf("clampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRankLocally(t *testing.T) {
	slot := &model.MealSlotRequest{
		MealType: "dinner",
		TagsAny:  []string{"italian"},
		Note:     "something with pasta please",
	}
	candidates := []model.MealPlanCandidate{
		{ID: "a", Title: "Taco Night", Tags: []string{"mexican"}},
		{ID: "b", Title: "Pasta Carbonara", Tags: []string{"italian"}},
		{ID: "c", Title: "Minestrone", Tags: []string{"italian", "soup"}},
		{ID: "d", Title: "Grilled Cheese", Tags: nil},
	}

	picks := rankLocally(slot, candidates)
	if len(picks) != 3 {
		t.Fatalf("picks = %d, want 3", len(picks))
	}
	// Carbonara scores tag match (+2) and the "pasta" note word (+1).
	if picks[0].id != "b" {
		t.Errorf("top pick = %q, want b", picks[0].id)
	}
	if picks[1].id != "c" {
		t.Errorf("second pick = %q, want c", picks[1].id)
	}
	// Score ties keep input order, so "a" beats "d" for the last spot.
	if picks[2].id != "a" {
		t.Errorf("third pick = %q, want a", picks[2].id)
	}
	for _, p := range picks {
		if p.confidence < 0 || p.confidence > 1 {
			t.Errorf("confidence %v out of range for %q", p.confidence, p.id)
		}
	}
}

func TestRankLocallyNoSignal(t *testing.T) {
	slot := &model.MealSlotRequest{MealType: "lunch"}
	candidates := []model.MealPlanCandidate{
		{ID: "a", Title: "Sandwich"},
		{ID: "b", Title: "Salad"},
	}
	picks := rankLocally(slot, candidates)
	if len(picks) != 2 {
		t.Fatalf("picks = %d, want 2", len(picks))
	}
	for _, p := range picks {
		if p.confidence != 0.3 {
			t.Errorf("confidence = %v, want 0.3 baseline", p.confidence)
		}
	}
}

func TestExcludedCandidate(t *testing.T) {
	c := &model.MealPlanCandidate{
		ID:          "x",
		Title:       "Shrimp Scampi",
		Description: "Garlicky shrimp over linguine",
		Tags:        []string{"seafood", "dinner"},
	}
	if !excludedCandidate(c, []string{"shrimp"}) {
		t.Error("title term should exclude")
	}
	if !excludedCandidate(c, []string{"SEAFOOD"}) {
		t.Error("tag match should be case-insensitive")
	}
	if excludedCandidate(c, []string{"chicken"}) {
		t.Error("unrelated term should not exclude")
	}
	if excludedCandidate(c, nil) {
		t.Error("no terms should not exclude")
	}
	if excludedCandidate(c, []string{""}) {
		t.Error("empty term should not exclude")
	}
}
