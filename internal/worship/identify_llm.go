package worship

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/pkg/provider/llm"
)

const identifyPrompt = `You identify worship songs from transcribed congregational singing. The transcript may contain speech recognition errors.

Focus on worship songs, hymns and contemporary Christian music. Only name a song when the lyrics clearly belong to it.

Respond with ONLY a JSON object (no markdown, no prose):
{"identified":true,"confidence":<0.0-1.0>,"title":"<song title>","artist":"<primary artist>"}

When unsure respond with {"identified":false,"confidence":0,"title":"","artist":""}.`

// llmReply is decoded leniently: models send confidence as a number or as
// "high"/"medium"/"low".
type llmReply struct {
	Identified bool            `json:"identified"`
	Confidence json.RawMessage `json:"confidence"`
	Title      string          `json:"title"`
	Artist     string          `json:"artist"`
}

func (o *Orchestrator) identifyLLM(ctx context.Context, transcript string) ([]library.Match, error) {
	resp, err := o.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: identifyPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Identify this worship song from these transcribed lyrics:\n\n%q", transcript),
		}},
		Temperature: 0.3,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("worship: llm identify: %w", err)
	}
	if resp == nil {
		return nil, nil
	}
	m, ok := parseLLMReply(resp.Content)
	if !ok {
		return nil, nil
	}
	return []library.Match{m}, nil
}

// parseLLMReply extracts a match from a model reply. Unidentified, untitled
// and low-confidence replies yield false.
func parseLLMReply(content string) (library.Match, bool) {
	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return library.Match{}, false
	}
	var r llmReply
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return library.Match{}, false
	}
	title := strings.TrimSpace(r.Title)
	if !r.Identified || title == "" {
		return library.Match{}, false
	}
	conf := min(confidence(r.Confidence), LLMConfidenceCap)
	if !(conf >= LLMConfidenceFloor) {
		return library.Match{}, false
	}
	artist := strings.TrimSpace(r.Artist)
	return library.Match{
		Song: library.Song{
			ID:     StrategyLLM + ":" + library.Key(title, artist),
			Title:  title,
			Artist: artist,
			Source: StrategyLLM,
		},
		Confidence: conf,
		Source:     StrategyLLM,
		Strategy:   StrategyLLM,
	}, true
}

func confidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return 0.9
	case "medium":
		return 0.75
	case "low":
		return 0.4
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
