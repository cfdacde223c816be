package session

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventKind enumerates the typed SSE event kinds spec §4.G defines.
type EventKind string

const (
	EventText       EventKind = "text"
	EventReasoning  EventKind = "reasoning"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventFinal      EventKind = "final"
	EventError      EventKind = "error"
)

// SSEWriter wraps an http.ResponseWriter with the wire format
// "event: <kind>\ndata: <payload>\n\n". Payloads are UTF-8 strings except
// `final`, which is JSON. Headers are set once and every event is flushed
// as soon as it is written.
type SSEWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSEWriter prepares w for SSE and returns a writer, or an error if the
// underlying ResponseWriter doesn't support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("session: streaming unsupported by response writer")
	}
	return &SSEWriter{w: w, f: flusher}, nil
}

// Send writes a raw string payload under the given event kind.
func (s *SSEWriter) Send(kind EventKind, payload string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", kind, payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// SendFinal marshals v to JSON and sends it as the terminal `final` event.
func (s *SSEWriter) SendFinal(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return s.Send(EventError, "failed to encode final response: "+err.Error())
	}
	return s.Send(EventFinal, string(b))
}
