package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseSink writes the gateway's normalized event stream to the client
// in SSE framing: `data: <json>` per event, then the literal [DONE]
// terminator. Implements provider.EventSink.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) event(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Delta(text string) error {
	return s.event(map[string]any{"type": "delta", "text": text})
}

func (s *sseSink) Final(fullText string) error {
	return s.event(map[string]any{"type": "final", "text": fullText})
}

func (s *sseSink) Done() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
