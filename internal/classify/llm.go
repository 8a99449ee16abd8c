package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lazypower/tether/internal/llm"
	"github.com/lazypower/tether/internal/model"
	"go.uber.org/zap"
)

// maxLogLines caps how many interactions go into one prompt; the newest are
// kept.
const maxLogLines = 200

// maxNoteRunes truncates free-text notes in the prompt.
const maxNoteRunes = 200

// LLM is a Classifier backed by a language model.
type LLM struct {
	client llm.Client
}

// NewLLM creates an LLM-backed classifier.
func NewLLM(client llm.Client) *LLM {
	return &LLM{client: client}
}

func (c *LLM) Classify(ctx context.Context, req Request) (Result, error) {
	if len(req.Interactions) == 0 {
		return Result{}, nil
	}
	resp, err := c.client.Complete(ctx, llm.ClassificationPrompt(condense(req.Interactions)))
	if err != nil {
		return Result{}, fmt.Errorf("classification LLM: %w", err)
	}
	res, err := parseResult(resp.Content)
	if err != nil {
		return Result{}, fmt.Errorf("parse classification: %w", err)
	}
	return sanitize(res), nil
}

// condense renders interactions one per line for the prompt.
func condense(interactions []model.Interaction) string {
	if len(interactions) > maxLogLines {
		interactions = interactions[len(interactions)-maxLogLines:]
	}
	var b strings.Builder
	for _, in := range interactions {
		fmt.Fprintf(&b, "%s | %s | %s | %s | emotions: %s",
			in.OccurredAt.Format("2006-01-02"),
			strings.Join(in.People, ", "),
			in.Type,
			in.Outcome,
			strings.Join(in.Emotions, ", "))
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			if r := []rune(notes); len(r) > maxNoteRunes {
				notes = string(r[:maxNoteRunes]) + "..."
			}
			fmt.Fprintf(&b, " | %s", strings.ReplaceAll(notes, "\n", " "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func parseResult(content string) (Result, error) {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object found in response")
	}

	var res Result
	if err := json.Unmarshal([]byte(content[start:end+1]), &res); err != nil {
		return Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return res, nil
}

// sanitize drops records outside the output contract and clamps the rest.
func sanitize(res Result) Result {
	var out Result
	for _, p := range res.Communication {
		if !p.Type.valid() || p.Frequency < 1 {
			continue
		}
		p.Trend = normalizeTrend(p.Trend)
		p.Confidence = model.Clamp01(p.Confidence)
		out.Communication = append(out.Communication, p)
	}
	for _, e := range res.Emotional {
		e.Emotion = strings.ToLower(strings.TrimSpace(e.Emotion))
		if e.Emotion == "" || e.Frequency < 1 {
			continue
		}
		e.Trend = normalizeTrend(e.Trend)
		e.Confidence = model.Clamp01(e.Confidence)
		sort.Strings(e.AssociatedPeople)
		out.Emotional = append(out.Emotional, e)
	}
	return out
}

func normalizeTrend(t Trend) Trend {
	switch Trend(strings.ToLower(string(t))) {
	case Increasing:
		return Increasing
	case Decreasing:
		return Decreasing
	}
	return Stable
}

// Fallback tries Primary and uses Secondary when it fails.
type Fallback struct {
	Primary   Classifier
	Secondary Classifier
	Log       *zap.Logger
}

func (f *Fallback) Classify(ctx context.Context, req Request) (Result, error) {
	res, err := f.Primary.Classify(ctx, req)
	if err == nil {
		return res, nil
	}
	if f.Log != nil {
		f.Log.Warn("primary classifier failed, using fallback",
			zap.String("user_id", req.UserID), zap.Error(err))
	}
	return f.Secondary.Classify(ctx, req)
}
