package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// sttFlushThreshold is how much audio we buffer before recognizing a batch.
const sttFlushThreshold = 64 * 1024

// HTTPTranscriber implements Transcriber against a whisper-style HTTP
// endpoint. Audio is buffered per session and recognized in batches; a
// controlled turn end flushes the tail, an abort discards it.
type HTTPTranscriber struct {
	endpoint string
	client   *http.Client

	mu       sync.Mutex
	sessions map[string]*sttSession
}

type sttSession struct {
	participantID string
	language      string
	onResult      func(participantID string, res TranscriptResult)
	buf           bytes.Buffer
}

func NewHTTPTranscriber(endpoint string) *HTTPTranscriber {
	if endpoint == "" {
		endpoint = "http://localhost:9000/asr"
	}
	return &HTTPTranscriber{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		sessions: make(map[string]*sttSession),
	}
}

func (t *HTTPTranscriber) StartSession(participantID, language string, onResult func(participantID string, res TranscriptResult)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[participantID]; ok {
		return fmt.Errorf("transcription session already open for %s", participantID)
	}
	t.sessions[participantID] = &sttSession{
		participantID: participantID,
		language:      language,
		onResult:      onResult,
	}
	return nil
}

func (t *HTTPTranscriber) PushAudio(participantID string, chunk []byte) error {
	t.mu.Lock()
	s, ok := t.sessions[participantID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("no transcription session for %s", participantID)
	}
	s.buf.Write(chunk)
	var batch []byte
	if s.buf.Len() >= sttFlushThreshold {
		batch = make([]byte, s.buf.Len())
		copy(batch, s.buf.Bytes())
		s.buf.Reset()
	}
	t.mu.Unlock()

	if batch != nil {
		go t.recognize(s, batch)
	}
	return nil
}

func (t *HTTPTranscriber) EndSession(participantID string, flush bool) error {
	t.mu.Lock()
	s, ok := t.sessions[participantID]
	if !ok {
		t.mu.Unlock()
		// Closing a session that never opened is a no-op; debate continuity
		// outranks strict failure signaling here.
		log.Printf("stt: end session for %s with no open session", participantID)
		return nil
	}
	delete(t.sessions, participantID)
	var tail []byte
	if flush && s.buf.Len() > 0 {
		tail = make([]byte, s.buf.Len())
		copy(tail, s.buf.Bytes())
	}
	s.buf.Reset()
	t.mu.Unlock()

	if tail != nil {
		go t.recognize(s, tail)
	}
	return nil
}

func (t *HTTPTranscriber) recognize(s *sttSession, audio []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	var res TranscriptResult
	err := withRetry(ctx, func() error {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("audio", "chunk.pcm")
		if err != nil {
			return err
		}
		if _, err := part.Write(audio); err != nil {
			return err
		}
		w.WriteField("language", s.language)
		w.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("post to stt: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("stt returned %d: %s", resp.StatusCode, raw)
		}
		return json.NewDecoder(resp.Body).Decode(&res)
	})
	if err != nil {
		log.Printf("stt: recognition failed for %s: %v", s.participantID, err)
		return
	}
	if res.Language == "" {
		res.Language = s.language
	}
	if res.Text != "" {
		s.onResult(s.participantID, res)
	}
}
