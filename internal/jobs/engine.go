package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ragkit/internal/apperr"
	"ragkit/internal/config"
	"ragkit/internal/objectstore"
	"ragkit/internal/rag/extract"
	"ragkit/internal/rag/service"
)

// Engine is the single worker-loop job runner described in spec §4.F: a
// FIFO queue of pending ids, an idempotency map, bounded retries with
// exponential backoff, and write-through persistence after every state
// transition. Grounded on this module's worker-loop shape (a single pop
// from a shared queue, mark-running, run, mark-terminal) adapted to the
// ingestion-job domain.
type Engine struct {
	mu       sync.Mutex
	jobsByID map[string]Job
	queue    []string
	idem     map[string]string

	store   Store
	svc     *service.Service
	extract *extract.Client
	cfg     config.JobsConfig
	// objectPublicBaseURL substitutes for the "s3://" scheme when resolving
	// object_url/s3/oss payloads that don't carry a presigned URL and no
	// objectStore is configured.
	objectPublicBaseURL string
	// objectStore, when non-nil, services KindS3/KindOSS jobs directly
	// against the configured bucket instead of an HTTP GET.
	objectStore objectstore.ObjectStore
	clock       func() time.Time
	log         *zerolog.Logger

	wake chan struct{}
}

// NewEngine constructs an Engine with empty in-memory state; call Restore
// before Run to repopulate it from store. objectStore may be nil, in which
// case s3/oss jobs fall back to an HTTP GET against objectPublicBaseURL.
func NewEngine(store Store, svc *service.Service, extractClient *extract.Client, cfg config.JobsConfig, objectPublicBaseURL string, objectStore objectstore.ObjectStore) *Engine {
	l := log.Logger
	return &Engine{
		jobsByID:            map[string]Job{},
		idem:                map[string]string{},
		store:               store,
		svc:                 svc,
		extract:             extractClient,
		cfg:                 cfg,
		objectPublicBaseURL: objectPublicBaseURL,
		objectStore:         objectStore,
		clock:               time.Now,
		log:                 &l,
		wake:                make(chan struct{}, 1),
	}
}

// Restore loads persisted state and forces any job found StatusRunning back
// to StatusPending, per spec: "On process start, every running is forced to
// pending."
func (e *Engine) Restore(ctx context.Context) error {
	jobsByID, queue, idem, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobsByID = jobsByID
	e.queue = queue
	e.idem = idem
	for id, j := range e.jobsByID {
		if j.Status == StatusRunning {
			j.Status = StatusPending
			j.UpdatedAt = e.clock().Unix()
			e.jobsByID[id] = j
		}
	}
	return nil
}

// Enqueue creates (or, for a repeated idempotency key, looks up) a job and
// returns its id plus whether it was a pre-existing match.
func (e *Engine) Enqueue(ctx context.Context, kind Kind, payload map[string]any, idempotencyKey string) (string, bool, error) {
	e.mu.Lock()
	if idempotencyKey != "" {
		if existing, ok := e.idem[idempotencyKey]; ok {
			e.mu.Unlock()
			return existing, true, nil
		}
	}
	now := e.clock().Unix()
	id := uuid.NewString()
	j := Job{
		ID:             id,
		Kind:           kind,
		Payload:        payload,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		Attempts:       0,
		IdempotencyKey: idempotencyKey,
	}
	e.jobsByID[id] = j
	e.queue = append(e.queue, id)
	if idempotencyKey != "" {
		e.idem[idempotencyKey] = id
	}
	queueSnap := append([]string(nil), e.queue...)
	idemSnap := make(map[string]string, len(e.idem))
	for k, v := range e.idem {
		idemSnap[k] = v
	}
	e.mu.Unlock()

	if err := e.store.SaveJob(ctx, j); err != nil {
		return "", false, err
	}
	if err := e.store.SaveQueue(ctx, queueSnap); err != nil {
		return "", false, err
	}
	if idempotencyKey != "" {
		if err := e.store.SaveIdempotency(ctx, idemSnap); err != nil {
			return "", false, err
		}
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return id, false, nil
}

// Get returns a snapshot of a job by id.
func (e *Engine) Get(id string) (Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobsByID[id]
	if !ok {
		return Job{}, false
	}
	return j.Clone(), true
}

// List returns a snapshot of every known job, most recently created first.
func (e *Engine) List() []Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Job, 0, len(e.jobsByID))
	for _, j := range e.jobsByID {
		out = append(out, j.Clone())
	}
	for i, n := 0, len(out); i < n-1; i++ {
		for k := i + 1; k < n; k++ {
			if out[k].CreatedAt > out[i].CreatedAt {
				out[i], out[k] = out[k], out[i]
			}
		}
	}
	return out
}

// Run drives the single worker loop until ctx is cancelled: pop one id (or
// sleep 500ms when empty), mark running, run with retries, mark terminal.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		id, ok := e.popQueue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		e.runOne(ctx, id)
	}
}

func (e *Engine) popQueue() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return "", false
	}
	id := e.queue[0]
	e.queue = e.queue[1:]
	return id, true
}

func (e *Engine) runOne(ctx context.Context, id string) {
	e.mu.Lock()
	j, ok := e.jobsByID[id]
	e.mu.Unlock()
	if !ok {
		return
	}

	j.Status = StatusRunning
	j.UpdatedAt = e.clock().Unix()
	e.setJob(ctx, j)

	maxRetries := e.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseMS := e.cfg.RetryBaseMS
	if baseMS <= 0 {
		baseMS = 500
	}
	delay := time.Duration(baseMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				goto done
			}
			delay *= 2
		}
		j.Attempts++
		e.setJob(ctx, j)

		err := e.dispatch(ctx, &j)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if fatal, isFatal := err.(fatalError); isFatal && fatal.fatal {
			break
		}
	}

done:
	if lastErr != nil {
		j.Status = StatusError
		j.Message = lastErr.Error()
	} else {
		j.Status = StatusDone
		if j.Message == "" {
			j.Message = "ok"
		}
	}
	j.UpdatedAt = e.clock().Unix()
	e.setJob(ctx, j)
}

func (e *Engine) setJob(ctx context.Context, j Job) {
	e.mu.Lock()
	e.jobsByID[j.ID] = j
	e.mu.Unlock()
	if err := e.store.SaveJob(ctx, j); err != nil {
		e.log.Error().Err(err).Str("job_id", j.ID).Msg("jobs_persist_failed")
	}
}

// fatalError marks an error as non-retryable: provider 4xx (non-429) and
// deserialization failures per spec §4.F's failure semantics.
type fatalError struct {
	err   error
	fatal bool
}

func (f fatalError) Error() string { return f.err.Error() }
func (f fatalError) Unwrap() error { return f.err }

func fatal(err error) error { return fatalError{err: err, fatal: true} }

func retryable(err error) error {
	if e, ok := apperr.As(err); ok && !e.Retryable() {
		return fatalError{err: err, fatal: true}
	}
	return fatalError{err: err, fatal: false}
}
