package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// maxSlotCandidates bounds the candidate list sent to the selector per
// slot. Top-3 means one selection plus two ranked alternatives.
const (
	maxSlotCandidates = 25
	maxAlternatives   = 2
)

const mealPlanSystemPrompt = `You pick recipes for meal plan slots. Given a slot description and a ` +
	`numbered candidate list, respond with exactly one JSON object and nothing else: ` +
	`{"selections": [{"id": string, "confidence": number, "reason": string}]} ` +
	`listing up to 3 candidate ids ranked best first. Confidence is 0 to 1. ` +
	`Only use ids from the candidate list. If nothing fits, respond with {"selections": []}.`

// HandleMealPlanGenerate fills every requested slot from the user's
// recipe library plus any caller-supplied candidates.
func (w *Worker) HandleMealPlanGenerate(ctx context.Context, t *asynq.Task) error {
	job, err := w.startJob(ctx, t)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	var req model.MealPlanGenerateRequest
	if err := json.Unmarshal(job.JobData, &req); err != nil {
		w.failJob(ctx, job, model.ErrCodeInvalidPayload, "invalid job data", nil, nil)
		return nil
	}

	avoidRepeats := req.Options != nil && req.Options.AvoidRepeats
	used := make(map[string]bool)

	result := model.MealPlanResult{}
	for _, day := range req.Days {
		dayResult := model.MealPlanDayResult{Date: day.Date}
		for _, slot := range day.Slots {
			slotResult := w.fillSlot(ctx, job, &slot, req.ExtraCandidates, used)
			if avoidRepeats && slotResult.Selection != nil {
				used[slotResult.Selection.RecipeID] = true
			}
			dayResult.Slots = append(dayResult.Slots, slotResult)
		}
		result.Days = append(result.Days, dayResult)

		if w.isCanceled(ctx, job.ID) {
			w.logger.Info("skip canceled meal plan job", zap.String("job_id", job.ID))
			return nil
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		w.failJob(ctx, job, model.ErrCodeWorkerError, "marshal result: "+err.Error(), nil, nil)
		return nil
	}

	applied, err := w.store.MarkComplete(ctx, job.ID, data)
	if err != nil {
		w.logger.Error("mark complete", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	if applied {
		w.hub.BroadcastComplete(job.ID, result)
		w.logger.Info("meal plan job complete",
			zap.String("job_id", job.ID), zap.Int("days", len(result.Days)))
	}
	return nil
}

// fillSlot gathers candidates and picks a winner for one slot.
func (w *Worker) fillSlot(ctx context.Context, job *model.Job, slot *model.MealSlotRequest, extra []model.MealPlanCandidate, used map[string]bool) model.MealSlotResult {
	out := model.MealSlotResult{MealType: slot.MealType}

	candidates, err := w.gatherCandidates(ctx, job.UserID, slot, extra, used)
	if err != nil {
		w.logger.Error("gather candidates", zap.String("job_id", job.ID), zap.Error(err))
		out.ErrorCode = model.ErrCodeWorkerError
		return out
	}
	if len(candidates) == 0 {
		out.ErrorCode = "no_candidates"
		return out
	}

	picks := w.selectCandidates(ctx, slot, candidates)
	if len(picks) == 0 {
		out.ErrorCode = "no_selection"
		return out
	}

	byID := make(map[string]model.MealPlanCandidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	for i, pick := range picks {
		cand, ok := byID[pick.id]
		if !ok {
			// The selector hallucinated an id; skip it.
			continue
		}
		if i == 0 || out.Selection == nil {
			sel := &model.MealPlanSelection{
				RecipeID:   cand.ID,
				Source:     cand.Source,
				Title:      cand.Title,
				Confidence: clampConfidence(pick.confidence),
				Reason:     pick.reason,
			}
			if cand.Source != "library" {
				if stagedID := w.stageCandidate(ctx, job, cand); stagedID != "" {
					sel.StagedID = stagedID
				}
			}
			out.Selection = sel
			continue
		}
		if len(out.Alternatives) < maxAlternatives {
			out.Alternatives = append(out.Alternatives, model.MealPlanAlternative{
				RecipeID: cand.ID,
				Title:    cand.Title,
				Reason:   pick.reason,
			})
		}
	}

	if out.Selection == nil {
		out.ErrorCode = "no_selection"
	}
	return out
}

// gatherCandidates merges library search hits with extra candidates and
// applies the slot filters.
func (w *Worker) gatherCandidates(ctx context.Context, userID string, slot *model.MealSlotRequest, extra []model.MealPlanCandidate, used map[string]bool) ([]model.MealPlanCandidate, error) {
	library, err := w.store.SearchRecipeCandidates(ctx, userID, slot.TagsAny, maxSlotCandidates)
	if err != nil {
		return nil, err
	}

	merged := make([]model.MealPlanCandidate, 0, len(library)+len(extra))
	seen := make(map[string]bool)
	for _, c := range append(library, extra...) {
		if seen[c.ID] || used[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Source == "" {
			c.Source = "library"
		}
		if excludedCandidate(&c, slot.ExcludeTerms) {
			continue
		}
		if slot.MaxTimeMinutes != nil && c.TotalTimeMinutes > 0 && c.TotalTimeMinutes > *slot.MaxTimeMinutes {
			continue
		}
		merged = append(merged, c)
		if len(merged) >= maxSlotCandidates {
			break
		}
	}
	return merged, nil
}

func excludedCandidate(c *model.MealPlanCandidate, excludeTerms []string) bool {
	if len(excludeTerms) == 0 {
		return false
	}
	haystack := strings.ToLower(c.Title + " " + c.Description + " " + strings.Join(c.Tags, " "))
	for _, term := range excludeTerms {
		if term != "" && strings.Contains(haystack, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

type slotPick struct {
	id         string
	confidence float64
	reason     string
}

// selectCandidates ranks candidates with the model, falling back to local
// scoring when no model is configured or the response is unusable.
func (w *Worker) selectCandidates(ctx context.Context, slot *model.MealSlotRequest, candidates []model.MealPlanCandidate) []slotPick {
	if w.chat != nil {
		if picks := w.selectWithModel(ctx, slot, candidates); len(picks) > 0 {
			return picks
		}
	}
	return rankLocally(slot, candidates)
}

func (w *Worker) selectWithModel(ctx context.Context, slot *model.MealSlotRequest, candidates []model.MealPlanCandidate) []slotPick {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Slot: %s", slot.MealType)
	if slot.Note != "" {
		fmt.Fprintf(&sb, " (%s)", slot.Note)
	}
	if len(slot.TagsAny) > 0 {
		fmt.Fprintf(&sb, ", preferred tags: %s", strings.Join(slot.TagsAny, ", "))
	}
	if slot.MaxTimeMinutes != nil {
		fmt.Fprintf(&sb, ", max time %d minutes", *slot.MaxTimeMinutes)
	}
	sb.WriteString("\n\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- id=%s title=%q", c.ID, c.Title)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&sb, " tags=%s", strings.Join(c.Tags, ","))
		}
		if c.TotalTimeMinutes > 0 {
			fmt.Fprintf(&sb, " total_time=%dm", c.TotalTimeMinutes)
		}
		sb.WriteString("\n")
	}

	raw, err := w.chat.ChatCompletion(ctx, w.liteModel, mealPlanSystemPrompt, sb.String())
	if err != nil {
		w.logger.Warn("meal plan selection model call failed", zap.Error(err))
		return nil
	}

	var parsed struct {
		Selections []struct {
			ID         string  `json:"id"`
			Confidence float64 `json:"confidence"`
			Reason     string  `json:"reason"`
		} `json:"selections"`
	}
	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		w.logger.Warn("unparseable meal plan selection", zap.Error(err))
		return nil
	}

	picks := make([]slotPick, 0, len(parsed.Selections))
	for _, s := range parsed.Selections {
		picks = append(picks, slotPick{id: s.ID, confidence: s.Confidence, reason: s.Reason})
	}
	return picks
}

// rankLocally scores candidates by tag and note overlap.
func rankLocally(slot *model.MealSlotRequest, candidates []model.MealPlanCandidate) []slotPick {
	type scored struct {
		cand  model.MealPlanCandidate
		score int
	}

	noteWords := strings.Fields(strings.ToLower(slot.Note))
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score := 0
		for _, want := range slot.TagsAny {
			for _, tag := range c.Tags {
				if strings.EqualFold(want, tag) {
					score += 2
				}
			}
		}
		text := strings.ToLower(c.Title + " " + c.Description)
		for _, word := range noteWords {
			if len(word) > 3 && strings.Contains(text, word) {
				score++
			}
		}
		ranked = append(ranked, scored{cand: c, score: score})
	}

	// Stable so score ties keep the library's relevance order.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	picks := make([]slotPick, 0, 3)
	for i, r := range ranked {
		if i >= 3 {
			break
		}
		confidence := 0.3
		if r.score > 0 {
			confidence = 0.5 + float64(r.score)*0.05
		}
		picks = append(picks, slotPick{
			id:         r.cand.ID,
			confidence: confidence,
			reason:     "matched slot preferences",
		})
	}
	return picks
}

// stageCandidate persists an external candidate so the client can save it
// later even if the upstream source disappears.
func (w *Worker) stageCandidate(ctx context.Context, job *model.Job, cand model.MealPlanCandidate) string {
	payload, err := json.Marshal(cand)
	if err != nil {
		return ""
	}
	staged := &model.StagedRecipe{
		ID:        uuid.New().String(),
		UserID:    job.UserID,
		Title:     cand.Title,
		Payload:   payload,
		ExpiresAt: time.Now().UTC().Add(w.stageTTL),
	}
	if err := w.store.CreateStagedRecipe(ctx, staged); err != nil {
		w.logger.Warn("stage candidate failed",
			zap.String("candidate_id", cand.ID), zap.Error(err))
		return ""
	}
	return staged.ID
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
