package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ragkit/internal/apperr"
	"ragkit/internal/llm"
)

// FinalResponse is the terminal JSON payload sent as the `final` SSE event.
type FinalResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// Manager drives the query session FSM (spec §4.G): session creation,
// streamed resumption bounded by the pending_tool invariant, and tool
// result delivery. No cooperative cancellation is propagated into the
// provider call — once a streaming completion starts, it runs to
// completion, per the concurrency model's documented tradeoff.
type Manager struct {
	store    Store
	provider llm.Provider
	model    string
	ttl      time.Duration
	clock    func() time.Time
}

// NewManager constructs a Manager. ttl of zero disables expiry (the
// MemoryStore fallback ignores it regardless).
func NewManager(store Store, provider llm.Provider, model string, ttl time.Duration) *Manager {
	return &Manager{store: store, provider: provider, model: model, ttl: ttl, clock: time.Now}
}

// Start creates a new session and persists it.
func (m *Manager) Start(ctx context.Context, query string, topK int, filters map[string]string) (Session, error) {
	now := m.clock().Unix()
	s := Session{
		ID:        uuid.NewString(),
		Query:     query,
		TopK:      topK,
		Filters:   filters,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return Session{}, err
	}
	return s, nil
}

// streamForwarder adapts llm.StreamHandler to an SSEWriter, forwarding
// deltas immediately and recording the first tool call (if any) so the
// caller can apply the pending_tool invariant once ChatStream returns.
type streamForwarder struct {
	w        *SSEWriter
	text     string
	toolCall *llm.ToolCall
	sendErr  error
}

func (f *streamForwarder) OnDelta(content string) {
	if f.sendErr != nil {
		return
	}
	f.text += content
	f.sendErr = f.w.Send(EventText, content)
}

func (f *streamForwarder) OnThoughtSummary(summary string) {
	if f.sendErr != nil {
		return
	}
	f.sendErr = f.w.Send(EventReasoning, summary)
}

func (f *streamForwarder) OnToolCall(tc llm.ToolCall) {
	if f.toolCall == nil {
		cp := tc
		f.toolCall = &cp
	}
	if f.sendErr != nil {
		return
	}
	f.sendErr = f.w.Send(EventToolCall, fmt.Sprintf("%s %s", tc.Name, string(tc.Args)))
}

func (f *streamForwarder) OnImage(llm.GeneratedImage) {}

// trimToContextWindow drops the oldest turns when the accumulated
// chat_history would overflow the model's context window, always keeping
// the most recent message (the turn being answered now). Uses the
// chars/4 estimate rather than a provider-specific tokenizer since this
// runs on every Stream call and must stay cheap.
func (m *Manager) trimToContextWindow(msgs []llm.Message) []llm.Message {
	window, _ := llm.ContextSize(m.model)
	if window <= 0 || len(msgs) <= 1 {
		return msgs
	}
	budget := window * 3 / 4 // leave headroom for the completion itself
	for len(msgs) > 1 && llm.EstimateTokensForMessages(msgs) > budget {
		msgs = msgs[1:]
	}
	return msgs
}

// Stream resumes sess, requesting a streaming completion over the current
// chat_history appended with the session's query. On a tool call it
// appends an assistant-with-tool-call entry, sets pending_tool, persists,
// and returns — leaving the stream suspended until ToolResult is called.
func (m *Manager) Stream(ctx context.Context, id string, w *SSEWriter) error {
	sess, ok, err := m.store.Get(ctx, id)
	if err != nil {
		_ = w.Send(EventError, err.Error())
		return err
	}
	if !ok {
		e := apperr.New(apperr.NotFound, "session: unknown session id")
		_ = w.Send(EventError, e.Error())
		return e
	}
	if sess.PendingTool != nil {
		e := apperr.New(apperr.Conflict, "session: pending_tool must be resolved before streaming")
		_ = w.Send(EventError, e.Error())
		return e
	}

	msgs := append([]llm.Message(nil), sess.ChatHistory...)
	if len(msgs) == 0 || sess.Query != "" {
		msgs = append(msgs, llm.Message{Role: "user", Content: sess.Query})
	}
	msgs = m.trimToContextWindow(msgs)

	fwd := &streamForwarder{w: w}
	// The provider call is detached from ctx's cancellation so a client
	// disconnect does not abort a completion that has already started.
	streamErr := m.provider.ChatStream(context.WithoutCancel(ctx), msgs, nil, m.model, fwd)
	if fwd.sendErr != nil {
		// a failed send means the client disconnected; stop forwarding but
		// still try to persist whatever state resulted.
		streamErr = fwd.sendErr
	}
	if streamErr != nil && fwd.toolCall == nil {
		sess.UpdatedAt = m.clock().Unix()
		_ = m.store.Save(ctx, sess, m.ttl)
		_ = w.Send(EventError, streamErr.Error())
		return streamErr
	}

	if fwd.toolCall != nil {
		sess.ChatHistory = append(sess.ChatHistory, llm.Message{
			Role:      "assistant",
			Content:   fwd.text,
			ToolCalls: []llm.ToolCall{*fwd.toolCall},
		})
		sess.PendingTool = &PendingTool{ID: fwd.toolCall.ID, CallID: fwd.toolCall.CallID, Name: fwd.toolCall.Name}
		sess.UpdatedAt = m.clock().Unix()
		return m.store.Save(ctx, sess, m.ttl)
	}

	sess.ChatHistory = append(sess.ChatHistory, llm.Message{Role: "assistant", Content: fwd.text})
	sess.UpdatedAt = m.clock().Unix()
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return err
	}
	return w.SendFinal(FinalResponse{SessionID: sess.ID, Answer: fwd.text})
}

// ToolResult delivers a tool's output back into a suspended session. It
// returns ok=false (a no_pending_tool no-op) when the session has no
// pending tool call, per spec.
func (m *Manager) ToolResult(ctx context.Context, id string, result string) (ok bool, err error) {
	sess, found, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, apperr.New(apperr.NotFound, "session: unknown session id")
	}
	if sess.PendingTool == nil {
		return false, nil
	}

	pt := sess.PendingTool
	sess.ChatHistory = append(sess.ChatHistory, llm.Message{
		Role:    "tool",
		Content: result,
		ToolID:  pt.ID,
	})
	sess.PendingTool = nil
	sess.UpdatedAt = m.clock().Unix()
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return false, err
	}
	return true, nil
}
