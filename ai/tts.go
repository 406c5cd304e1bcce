package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ttsChunkSize matches the frame size the client-side player expects.
const ttsChunkSize = 8 * 1024

// HTTPSynthesizer streams audio from a piper-style TTS endpoint. The server
// writes chunked audio; we forward fixed-size chunks to onChunk in order.
type HTTPSynthesizer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSynthesizer(endpoint string) *HTTPSynthesizer {
	if endpoint == "" {
		endpoint = "http://localhost:7071/tts"
	}
	// Long timeout: synthesis of a full debate sentence can take a while.
	return &HTTPSynthesizer{endpoint: endpoint, client: &http.Client{Timeout: 120 * time.Second}}
}

type ttsRequest struct {
	Text      string  `json:"text"`
	Language  string  `json:"language"`
	VoiceID   string  `json:"voiceId"`
	Stability float64 `json:"stability"`
	Pacing    float64 `json:"pacing"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, language string, params SynthesisParams, onChunk func(chunk []byte)) error {
	reqBody, err := json.Marshal(ttsRequest{
		Text:      text,
		Language:  language,
		VoiceID:   params.VoiceID,
		Stability: params.Stability,
		Pacing:    params.Pacing,
	})
	if err != nil {
		return fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to tts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tts returned %d: %s", resp.StatusCode, body)
	}

	buf := make([]byte, ttsChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tts stream: %w", err)
		}
	}
}
