package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"crossfire/models"
)

// Gemini talks to the Google generative language REST API. One client backs
// translation, emotion inference, argument extraction, verdicts, and bot
// speech generation; each concern is just a different prompt.
type Gemini struct {
	apiKey string
	model  string
	client *http.Client
}

func NewGemini(apiKey string) *Gemini {
	return &Gemini{
		apiKey: apiKey,
		model:  "gemini-1.5-flash",
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach gemini: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, body)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse ai response: %w", err)
	}
	return extractAIResponse(result)
}

// extractAIResponse walks the candidates/content/parts shape of a
// generateContent response down to the first text part.
func extractAIResponse(result map[string]interface{}) (string, error) {
	candidates, ok := result["candidates"].([]interface{})
	if !ok || len(candidates) == 0 {
		return "", fmt.Errorf("no candidates found in ai response")
	}
	firstCandidate, ok := candidates[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid candidate format")
	}
	content, ok := firstCandidate["content"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("no content found in candidate")
	}
	parts, ok := content["parts"].([]interface{})
	if !ok || len(parts) == 0 {
		return "", fmt.Errorf("no parts found in content")
	}
	firstPart, ok := parts[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid part format")
	}
	text, ok := firstPart["text"].(string)
	if !ok {
		return "", fmt.Errorf("no text found in part")
	}
	return text, nil
}

// cleanJSON strips the code fences the model insists on wrapping json in.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Generate implements Generator for bot speech content.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := withRetry(ctx, func() error {
		text, err := g.generate(ctx, prompt)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

// Translate implements Translator.
func (g *Gemini) Translate(ctx context.Context, text, from, to, debateContext string) (Translation, error) {
	if from == to {
		return Translation{TranslatedText: text}, nil
	}
	prompt := fmt.Sprintf(`translate the following debate speech fragment from %s to %s.
keep the rhetorical register; do not summarize or annotate. context so far: %q.
reply with the translation only.

%s`, from, to, debateContext, text)

	start := time.Now()
	var out string
	err := withRetry(ctx, func() error {
		translated, err := g.generate(ctx, prompt)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(translated)
		return nil
	})
	if err != nil {
		return Translation{}, err
	}
	return Translation{TranslatedText: out, LatencyMs: time.Since(start).Milliseconds()}, nil
}

// Detect implements EmotionDetector.
func (g *Gemini) Detect(ctx context.Context, original, translated, debateContext string, previous EmotionReading) (EmotionReading, error) {
	prompt := fmt.Sprintf(`classify the dominant emotion of this debate utterance.
original: %q
translated: %q
context: %q
previous reading: %s at intensity %.2f
reply as a json object with keys "dominantEmotion" (one of: neutral, confident, passionate, aggressive, calm, uncertain), "intensity" (0..1), "confidence" (0..1).`,
		original, translated, debateContext, previous.Dominant, previous.Intensity)

	var reading EmotionReading
	err := withRetry(ctx, func() error {
		text, err := g.generate(ctx, prompt)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(cleanJSON(text)), &reading)
	})
	if err != nil {
		return EmotionReading{}, err
	}
	return reading, nil
}

// Extract implements ArgumentExtractor.
func (g *Gemini) Extract(ctx context.Context, transcript string, prior []models.Argument, ec ExtractContext) ([]models.Argument, error) {
	priorJSON, _ := json.Marshal(prior)
	prompt := fmt.Sprintf(`extract the structured arguments from this %s debate speech on the resolution %q, spoken by the %s side.
prior arguments in the round (json): %s
transcript:
%s

format the response as a json array of objects with keys: "claim", "warrant", "impact", "respondsTo" (array of prior argument ids this answers, may be empty), "status" ("standing", "answered" or "dropped").`,
		ec.Speech, ec.Resolution, ec.Side, priorJSON, transcript)

	var raw []struct {
		Claim      string   `json:"claim"`
		Warrant    string   `json:"warrant"`
		Impact     string   `json:"impact"`
		RespondsTo []string `json:"respondsTo"`
		Status     string   `json:"status"`
	}
	err := withRetry(ctx, func() error {
		text, err := g.generate(ctx, prompt)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(cleanJSON(text)), &raw)
	})
	if err != nil {
		return nil, err
	}

	args := make([]models.Argument, 0, len(raw))
	for _, r := range raw {
		args = append(args, models.Argument{
			ID:         uuid.NewString(),
			Speech:     ec.Speech,
			Side:       ec.Side,
			Claim:      r.Claim,
			Warrant:    r.Warrant,
			Impact:     r.Impact,
			RespondsTo: r.RespondsTo,
			Status:     r.Status,
		})
	}
	return args, nil
}

// GenerateVerdict implements VerdictGenerator.
func (g *Gemini) GenerateVerdict(ctx context.Context, flow models.FlowSnapshot, room models.RoomSnapshot, resolution string) (models.Verdict, error) {
	flowJSON, _ := json.Marshal(flow)
	prompt := fmt.Sprintf(`judge this completed one-on-one debate on the resolution %q.
the full flow (transcripts by speech, extracted arguments) as json: %s
weigh dropped arguments against the side that dropped them. decide a winner.
format the response as a json object with keys: "winner" ("AFF" or "NEG"), "reasoning" (a short ballot paragraph), "affPoints" (0..30), "negPoints" (0..30).`,
		resolution, flowJSON)

	var verdict models.Verdict
	err := withRetry(ctx, func() error {
		text, err := g.generate(ctx, prompt)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(cleanJSON(text)), &verdict)
	})
	if err != nil {
		return models.Verdict{}, err
	}
	return verdict, nil
}
