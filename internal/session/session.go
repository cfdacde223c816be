// Package session implements the query session FSM (§4.G):
// multi-turn sessions with a chat_history, a strict pending_tool
// suspend/resume invariant, and an SSE event writer for streaming
// responses as typed `event: <kind>` frames (header setup,
// flush-per-event; see sse.go).
package session

import (
	"encoding/json"
	"time"

	"ragkit/internal/llm"
)

// PendingTool records an in-flight tool call a session is suspended on.
// While set, only ToolResult may advance the session.
type PendingTool struct {
	ID     string `json:"id"`
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name"`
}

// Session is the persisted state for one multi-turn query session.
type Session struct {
	ID          string            `json:"session_id"`
	Query       string            `json:"query"`
	TopK        int               `json:"top_k,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	ChatHistory []llm.Message     `json:"chat_history"`
	PendingTool *PendingTool      `json:"pending_tool,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
}

// Clone returns a deep-enough copy safe to read outside the store's lock.
func (s Session) Clone() Session {
	out := s
	out.ChatHistory = append([]llm.Message(nil), s.ChatHistory...)
	if s.Filters != nil {
		out.Filters = make(map[string]string, len(s.Filters))
		for k, v := range s.Filters {
			out.Filters[k] = v
		}
	}
	if s.PendingTool != nil {
		pt := *s.PendingTool
		out.PendingTool = &pt
	}
	return out
}

// MarshalForStore serializes a Session to the JSON value persisted under
// key "session:<id>", per spec.
func MarshalForStore(s Session) ([]byte, error) { return json.Marshal(s) }

// UnmarshalFromStore deserializes a Session previously written by
// MarshalForStore.
func UnmarshalFromStore(b []byte) (Session, error) {
	var s Session
	err := json.Unmarshal(b, &s)
	return s, err
}

func unixNow(clock func() time.Time) int64 { return clock().Unix() }
