package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"time"
)

// EventSink receives the gateway's normalized stream events in order.
// The gateway's SSE writer implements it over the client connection.
type EventSink interface {
	Delta(text string) error
	Final(fullText string) error
	Done() error
}

// StreamResult summarizes a finished (or aborted) stream for the usage
// ledger.
type StreamResult struct {
	FullText string
	Failure  *Failure
}

// offlineDelay is the cadence between synthetic chunks in offline mode.
const offlineDelay = 150 * time.Millisecond

// providerEvent is the upstream SSE event envelope. Only
// content_block_delta events carrying a text_delta are forwarded.
type providerEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// Stream proxies a streaming completion into sink. Upstream failures
// fail open: the fallback text is delivered through the same
// delta/final/done sequence a live stream would produce.
func (c *Client) Stream(ctx context.Context, req Request, sink EventSink) StreamResult {
	if !c.Configured() {
		return c.streamCanned(ctx, req, sink)
	}

	resp, status, err := c.post(ctx, req, true)
	if err != nil {
		log.Printf("❌ provider stream failed: %v", err)
		return streamFallback(sink, &Failure{Status: status, Details: err.Error()})
	}
	defer resp.Body.Close()

	if status < 200 || status >= 300 {
		log.Printf("❌ provider stream returned %d", status)
		return streamFallback(sink, &Failure{Status: status, Details: "provider stream error"})
	}

	full, err := normalize(resp.Body, sink)
	if err != nil {
		// Downstream write failed or upstream broke mid-stream. The
		// deferred body close aborts the provider connection.
		return StreamResult{FullText: full, Failure: &Failure{Status: status, Details: err.Error()}}
	}

	if err := sink.Final(full); err != nil {
		return StreamResult{FullText: full, Failure: &Failure{Status: status, Details: err.Error()}}
	}
	if err := sink.Done(); err != nil {
		return StreamResult{FullText: full, Failure: &Failure{Status: status, Details: err.Error()}}
	}

	return StreamResult{FullText: full}
}

// normalize is the pull loop over the provider's raw SSE bytes: split
// on lines, keep `data:` payloads, forward text deltas in arrival
// order and accumulate the full text. Every other event type is
// dropped silently.
func normalize(body io.Reader, sink EventSink) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var ev providerEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		if ev.Type != "content_block_delta" || ev.Delta == nil || ev.Delta.Type != "text_delta" {
			continue
		}

		full.WriteString(ev.Delta.Text)
		if err := sink.Delta(ev.Delta.Text); err != nil {
			return full.String(), err
		}
	}

	return full.String(), scanner.Err()
}

// streamCanned synthesizes three deltas and a final summary on a fixed
// cadence, then terminates, mirroring the live event sequence exactly.
func (c *Client) streamCanned(ctx context.Context, req Request, sink EventSink) StreamResult {
	var full strings.Builder
	for _, chunk := range cannedDeltas(req.Action, req.Payload) {
		select {
		case <-ctx.Done():
			return StreamResult{FullText: full.String(), Failure: &Failure{Details: ctx.Err().Error()}}
		case <-time.After(offlineDelay):
		}

		full.WriteString(chunk)
		if err := sink.Delta(chunk); err != nil {
			return StreamResult{FullText: full.String(), Failure: &Failure{Details: err.Error()}}
		}
	}

	if err := sink.Final(full.String()); err != nil {
		return StreamResult{FullText: full.String(), Failure: &Failure{Details: err.Error()}}
	}
	if err := sink.Done(); err != nil {
		return StreamResult{FullText: full.String(), Failure: &Failure{Details: err.Error()}}
	}

	return StreamResult{FullText: full.String()}
}

// streamFallback delivers the generic fallback text through the normal
// event sequence after an upstream failure.
func streamFallback(sink EventSink, failure *Failure) StreamResult {
	if err := sink.Delta(fallbackContent); err != nil {
		return StreamResult{Failure: failure}
	}
	if err := sink.Final(fallbackContent); err != nil {
		return StreamResult{FullText: fallbackContent, Failure: failure}
	}
	_ = sink.Done()
	return StreamResult{FullText: fallbackContent, Failure: failure}
}
