package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragkit/internal/llm"
)

// textOnlyProvider streams a fixed set of deltas and returns, never calling
// OnToolCall — exercises the non-tool completion path.
type textOnlyProvider struct{ deltas []string }

func (p textOnlyProvider) Chat(context.Context, []llm.Message, []llm.ToolSchema, string) (llm.Message, error) {
	return llm.Message{}, nil
}

func (p textOnlyProvider) ChatStream(_ context.Context, _ []llm.Message, _ []llm.ToolSchema, _ string, h llm.StreamHandler) error {
	for _, d := range p.deltas {
		h.OnDelta(d)
	}
	return nil
}

// toolCallProvider streams one delta then emits a tool call, exercising the
// suspend path.
type toolCallProvider struct{}

func (p toolCallProvider) Chat(context.Context, []llm.Message, []llm.ToolSchema, string) (llm.Message, error) {
	return llm.Message{}, nil
}

func (p toolCallProvider) ChatStream(_ context.Context, _ []llm.Message, _ []llm.ToolSchema, _ string, h llm.StreamHandler) error {
	h.OnDelta("let me check that")
	h.OnToolCall(llm.ToolCall{ID: "call_1", Name: "search", Args: json.RawMessage(`{"q":"golang"}`)})
	return nil
}

func newRecorder(t *testing.T) (*httptest.ResponseRecorder, *SSEWriter) {
	t.Helper()
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)
	return rec, w
}

func TestManager_StreamCompletesWithoutToolCall(t *testing.T) {
	m := NewManager(NewMemoryStore(), textOnlyProvider{deltas: []string{"hello ", "world"}}, "test-model", time.Hour)
	sess, err := m.Start(context.Background(), "hi", 5, nil)
	require.NoError(t, err)

	rec, w := newRecorder(t)
	require.NoError(t, m.Stream(context.Background(), sess.ID, w))
	require.Contains(t, rec.Body.String(), "event: text")
	require.Contains(t, rec.Body.String(), "event: final")

	got, ok, err := m.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, got.PendingTool)
	require.Len(t, got.ChatHistory, 1)
}

func TestManager_StreamSuspendsOnToolCall(t *testing.T) {
	m := NewManager(NewMemoryStore(), toolCallProvider{}, "test-model", time.Hour)
	sess, err := m.Start(context.Background(), "search golang", 5, nil)
	require.NoError(t, err)

	rec, w := newRecorder(t)
	require.NoError(t, m.Stream(context.Background(), sess.ID, w))
	require.Contains(t, rec.Body.String(), "event: tool_call")
	require.NotContains(t, rec.Body.String(), "event: final")

	got, ok, err := m.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.PendingTool)
	require.Equal(t, "search", got.PendingTool.Name)
}

func TestManager_ToolResultClearsPendingAndRejectsWhenNone(t *testing.T) {
	m := NewManager(NewMemoryStore(), toolCallProvider{}, "test-model", time.Hour)
	sess, err := m.Start(context.Background(), "search golang", 5, nil)
	require.NoError(t, err)

	_, w := newRecorder(t)
	require.NoError(t, m.Stream(context.Background(), sess.ID, w))

	ok, err := m.ToolResult(context.Background(), sess.ID, `{"results":[]}`)
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := m.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Nil(t, got.PendingTool)

	// a second tool_result with nothing pending is a no-op, not an error
	ok2, err := m.ToolResult(context.Background(), sess.ID, "late result")
	require.NoError(t, err)
	require.False(t, ok2)
}

func TestManager_StreamRejectsWhenPendingToolUnresolved(t *testing.T) {
	m := NewManager(NewMemoryStore(), toolCallProvider{}, "test-model", time.Hour)
	sess, err := m.Start(context.Background(), "search golang", 5, nil)
	require.NoError(t, err)

	_, w1 := newRecorder(t)
	require.NoError(t, m.Stream(context.Background(), sess.ID, w1))

	_, w2 := newRecorder(t)
	err = m.Stream(context.Background(), sess.ID, w2)
	require.Error(t, err)
}
