// Package jobs implements the ingestion job engine (spec §4.F): a durable
// queue of heterogeneous indexing jobs (URL fetch, PDF batch, local file,
// object-storage pull) driven by a single worker loop, with bounded retries,
// exponential backoff, resume checkpoints, and an idempotency map, backed by
// an in-memory store or a dual Redis+Postgres store.
package jobs

import "time"

// Status is one of the fixed job lifecycle states. The only legal
// transitions are pending -> running -> (done | error).
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Kind selects the dispatch behavior for a job's payload.
type Kind string

const (
	KindURL       Kind = "url"
	KindPDFGlob   Kind = "pdf_glob"
	KindFile      Kind = "file"
	KindObjectURL Kind = "object_url"
	KindS3        Kind = "s3"
	KindOSS       Kind = "oss"
)

// Progress reports advisory counters surfaced to clients polling a job.
type Progress struct {
	Total     int `json:"total,omitempty"`
	Completed int `json:"completed"`
	Current   int `json:"current,omitempty"`
}

// PDFGlobResume is the resume checkpoint for a pdf_glob job: the path list
// is fixed at job start, and Next advances as each file completes so a
// restart after an arbitrary process kill resumes rather than restarts.
type PDFGlobResume struct {
	Paths     []string `json:"paths"`
	Next      int      `json:"next"`
	Prefix    string    `json:"prefix,omitempty"`
	ChunkSize int      `json:"chunk_size,omitempty"`
	Overlap   int      `json:"overlap,omitempty"`
}

// Job is a single unit of ingestion work tracked by the engine.
type Job struct {
	ID             string         `json:"id"`
	Kind           Kind           `json:"kind"`
	Payload        map[string]any `json:"payload"`
	Status         Status         `json:"status"`
	Message        string         `json:"message,omitempty"`
	CreatedAt      int64          `json:"created_at"`
	UpdatedAt      int64          `json:"updated_at"`
	Attempts       int            `json:"attempts"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Progress       *Progress      `json:"progress,omitempty"`
	Resume         *PDFGlobResume `json:"resume,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to callers outside the lock.
func (j Job) Clone() Job {
	out := j
	if j.Payload != nil {
		out.Payload = make(map[string]any, len(j.Payload))
		for k, v := range j.Payload {
			out.Payload[k] = v
		}
	}
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	if j.Resume != nil {
		r := *j.Resume
		r.Paths = append([]string(nil), j.Resume.Paths...)
		out.Resume = &r
	}
	return out
}

func nowUnix(clock func() time.Time) int64 { return clock().Unix() }
