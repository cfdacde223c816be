package llm

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"ragkit/internal/observability"
)

var (
	mu                   sync.RWMutex
	enablePayloadLogging = false
	truncateBytes        = 0 // 0 means no truncation
)

var (
	totalsMu     sync.RWMutex
	modelTotals  = map[string]struct{ Prompt, Completion int64 }{}
	modelBuckets = map[string]map[int64]*tokenBucket{}
)

const (
	tokenBucketResolution = time.Minute
	tokenBucketRetention  = 45 * 24 * time.Hour
)

type tokenBucket struct {
	Prompt     int64
	Completion int64
}

var timeNow = time.Now

// RecordTokenMetrics records token usage for a model and updates in-process
// cumulative totals used by the admin metrics surface.
func RecordTokenMetrics(model string, promptTokens, completionTokens int) {
	recordTokenMetrics(model, promptTokens, completionTokens, timeNow())
}

func recordTokenMetrics(model string, promptTokens, completionTokens int, ts time.Time) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ts = ts.UTC()
	p := int64(promptTokens)
	c := int64(completionTokens)
	totalsMu.Lock()
	cur := modelTotals[model]
	cur.Prompt += p
	cur.Completion += c
	modelTotals[model] = cur
	if p > 0 || c > 0 {
		updateTokenBucketsLocked(model, ts, p, c)
	}
	totalsMu.Unlock()
}

// TokenTotal represents cumulative token counts per model since process start.
type TokenTotal struct {
	Model      string `json:"model"`
	Prompt     int64  `json:"prompt"`
	Completion int64  `json:"completion"`
	Total      int64  `json:"total"`
}

// TokenTotalsSnapshot returns a stable snapshot of current cumulative totals.
func TokenTotalsSnapshot() []TokenTotal {
	totalsMu.RLock()
	defer totalsMu.RUnlock()
	out := make([]TokenTotal, 0, len(modelTotals))
	for model, v := range modelTotals {
		out = append(out, TokenTotal{Model: model, Prompt: v.Prompt, Completion: v.Completion, Total: v.Prompt + v.Completion})
	}
	sortTokenTotals(out)
	return out
}

// TokenTotalsForWindow returns token aggregates limited to the requested
// window. When the requested window exceeds in-memory retention, the applied
// window in the return value reflects the actually covered duration.
func TokenTotalsForWindow(window time.Duration) ([]TokenTotal, time.Duration) {
	totalsMu.RLock()
	defer totalsMu.RUnlock()

	if window <= 0 {
		out := make([]TokenTotal, 0, len(modelTotals))
		for model, v := range modelTotals {
			out = append(out, TokenTotal{Model: model, Prompt: v.Prompt, Completion: v.Completion, Total: v.Prompt + v.Completion})
		}
		sortTokenTotals(out)
		return out, 0
	}

	now := timeNow().UTC()
	cutoffKey := bucketKey(now.Add(-window))

	out := make([]TokenTotal, 0, len(modelBuckets))
	var earliestIncludedKey int64
	hasIncluded := false

	for model, buckets := range modelBuckets {
		var prompt, completion int64
		for key, bucket := range buckets {
			if key < cutoffKey {
				continue
			}
			prompt += bucket.Prompt
			completion += bucket.Completion
			if !hasIncluded || key < earliestIncludedKey {
				earliestIncludedKey = key
				hasIncluded = true
			}
		}
		if prompt == 0 && completion == 0 {
			continue
		}
		out = append(out, TokenTotal{
			Model:      model,
			Prompt:     prompt,
			Completion: completion,
			Total:      prompt + completion,
		})
	}
	sortTokenTotals(out)

	applied := window
	if hasIncluded {
		nowKey := bucketKey(now)
		if nowKey >= earliestIncludedKey {
			available := time.Duration(nowKey-earliestIncludedKey)*time.Second + tokenBucketResolution
			if available < applied {
				applied = available
			}
		}
	}

	return out, applied
}

func updateTokenBucketsLocked(model string, ts time.Time, prompt, completion int64) {
	key := bucketKey(ts)
	buckets := modelBuckets[model]
	if buckets == nil {
		buckets = make(map[int64]*tokenBucket)
		modelBuckets[model] = buckets
	}
	bucket := buckets[key]
	if bucket == nil {
		bucket = &tokenBucket{}
		buckets[key] = bucket
	}
	bucket.Prompt += prompt
	bucket.Completion += completion

	cutoffKey := bucketKey(ts.Add(-tokenBucketRetention))
	for k := range buckets {
		if k < cutoffKey {
			delete(buckets, k)
		}
	}

	if len(buckets) == 0 {
		delete(modelBuckets, model)
	}
}

func bucketKey(ts time.Time) int64 {
	return ts.Truncate(tokenBucketResolution).Unix()
}

func sortTokenTotals(totals []TokenTotal) {
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total == totals[j].Total {
			return totals[i].Model < totals[j].Model
		}
		return totals[i].Total > totals[j].Total
	})
}

func resetTokenMetricsState() {
	totalsMu.Lock()
	defer totalsMu.Unlock()
	modelTotals = map[string]struct{ Prompt, Completion int64 }{}
	modelBuckets = map[string]map[int64]*tokenBucket{}
}

// ConfigureLogging sets global behavior for prompt/response logging.
// Call this once at startup with values from the main config.
func ConfigureLogging(enable bool, truncate int) {
	mu.Lock()
	defer mu.Unlock()
	enablePayloadLogging = enable
	truncateBytes = truncate
}

// RequestSpan is a minimal request-scoped tracker for a single LLM call.
// It carries the attributes a tracing backend would want without requiring
// one: callers that want real distributed tracing can still correlate calls
// via the request id threaded through ctx (see observability.WithRequestID).
type RequestSpan struct {
	operation        string
	model            string
	tools            int
	messages         int
	start            time.Time
	err              error
	promptTokens     int
	completionTokens int
	totalTokens      int
}

// StartRequestSpan begins tracking an LLM request.
func StartRequestSpan(ctx context.Context, operation string, model string, tools int, messages int) (context.Context, *RequestSpan) {
	return ctx, &RequestSpan{operation: operation, model: model, tools: tools, messages: messages, start: timeNow()}
}

// RecordError marks the span as having failed; the error is surfaced by the
// caller's own logging, this only keeps the outcome on the span itself.
func (s *RequestSpan) RecordError(err error) {
	if s == nil {
		return
	}
	s.err = err
}

// End finalizes the span.
func (s *RequestSpan) End() {
	if s == nil {
		return
	}
}

func shouldLog() (bool, int) {
	mu.RLock()
	defer mu.RUnlock()
	return enablePayloadLogging, truncateBytes
}

// LogRedactedPrompt logs a redacted copy of the prompt/messages at debug
// level. If global logging is disabled this is a no-op. Large payloads are
// truncated according to configuration.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	ok, t := shouldLog()
	if !ok {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	if t > 0 && len(red) > t {
		previewObj := map[string]any{"truncated": true, "preview": string(red[:t])}
		if pb, err := json.Marshal(previewObj); err == nil {
			tmp := log.With().RawJSON("prompt", pb).Logger()
			tmp.Debug().Msg("llm_request")
			return
		}
	}
	tmp := log.With().RawJSON("prompt", red).Logger()
	tmp.Debug().Msg("llm_request")
}

// LogRedactedResponse logs a redacted copy of the response payload at debug
// level. If global logging is disabled this is a no-op.
func LogRedactedResponse(ctx context.Context, resp any) {
	ok, t := shouldLog()
	if !ok {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	if t > 0 && len(red) > t {
		previewObj := map[string]any{"truncated": true, "preview": string(red[:t])}
		if pb, err := json.Marshal(previewObj); err == nil {
			tmp := log.With().RawJSON("response", pb).Logger()
			tmp.Debug().Msg("llm_response")
			return
		}
	}
	tmp := log.With().RawJSON("response", red).Logger()
	tmp.Debug().Msg("llm_response")
}

// recordTokens stores the token counts on the span.
func (s *RequestSpan) recordTokens(promptTokens, completionTokens, totalTokens int) {
	if s == nil {
		return
	}
	s.promptTokens = promptTokens
	s.completionTokens = completionTokens
	s.totalTokens = totalTokens
}

// RecordTokenAttributes sets token count attributes on the provided span.
// It does not touch the cumulative per-model totals; callers record those
// once per call with RecordTokenMetrics.
func RecordTokenAttributes(span *RequestSpan, promptTokens, completionTokens, totalTokens int) {
	if span == nil {
		return
	}
	span.recordTokens(promptTokens, completionTokens, totalTokens)
}
