package jobs

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"ragkit/internal/apperr"
)

// PostgresStore implements the "relational" persistence option from spec
// §4.F: jobs(id pk, kind, payload jsonb, status, message, created_at int8,
// updated_at int8, attempts int, idempotency_key, progress jsonb, resume
// jsonb), job_queue(job_id fk, enqueued_at), idempotency(key pk, job_id).
// Updates are INSERT ... ON CONFLICT ... DO UPDATE. Grounded on this
// module's pgxpool wiring in internal/persistence/databases (ParseConfig +
// NewWithConfig, the same connection-pool idiom used for the FTS/vector
// Postgres backends).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-open pgxpool and ensures the jobs
// schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			idempotency_key TEXT,
			progress JSONB,
			resume JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS job_queue (
			job_id TEXT NOT NULL,
			enqueued_at BIGINT NOT NULL,
			position BIGSERIAL PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency (
			key TEXT PRIMARY KEY,
			job_id TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.Database, "jobs: ensuring schema", err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (map[string]Job, []string, map[string]string, error) {
	jobsByID := map[string]Job{}
	rows, err := s.pool.Query(ctx, `SELECT id, kind, payload, status, message, created_at, updated_at, attempts, idempotency_key, progress, resume FROM jobs`)
	if err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: loading jobs table", err)
	}
	for rows.Next() {
		var j Job
		var payloadRaw, progressRaw, resumeRaw []byte
		var idemKey *string
		var message *string
		if err := rows.Scan(&j.ID, &j.Kind, &payloadRaw, &j.Status, &message, &j.CreatedAt, &j.UpdatedAt, &j.Attempts, &idemKey, &progressRaw, &resumeRaw); err != nil {
			rows.Close()
			return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: scanning job row", err)
		}
		if message != nil {
			j.Message = *message
		}
		if idemKey != nil {
			j.IdempotencyKey = *idemKey
		}
		if len(payloadRaw) > 0 {
			_ = json.Unmarshal(payloadRaw, &j.Payload)
		}
		if len(progressRaw) > 0 {
			var p Progress
			if err := json.Unmarshal(progressRaw, &p); err == nil {
				j.Progress = &p
			}
		}
		if len(resumeRaw) > 0 {
			var r PDFGlobResume
			if err := json.Unmarshal(resumeRaw, &r); err == nil {
				j.Resume = &r
			}
		}
		jobsByID[j.ID] = j
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: iterating jobs table", err)
	}

	var queue []string
	qrows, err := s.pool.Query(ctx, `SELECT job_id FROM job_queue ORDER BY position ASC`)
	if err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: loading job_queue table", err)
	}
	for qrows.Next() {
		var id string
		if err := qrows.Scan(&id); err != nil {
			qrows.Close()
			return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: scanning job_queue row", err)
		}
		queue = append(queue, id)
	}
	qrows.Close()

	idem := map[string]string{}
	irows, err := s.pool.Query(ctx, `SELECT key, job_id FROM idempotency`)
	if err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: loading idempotency table", err)
	}
	for irows.Next() {
		var k, jobID string
		if err := irows.Scan(&k, &jobID); err != nil {
			irows.Close()
			return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: scanning idempotency row", err)
		}
		idem[k] = jobID
	}
	irows.Close()

	return jobsByID, queue, idem, nil
}

func (s *PostgresStore) SaveJob(ctx context.Context, j Job) error {
	payloadRaw, _ := json.Marshal(j.Payload)
	var progressRaw, resumeRaw []byte
	if j.Progress != nil {
		progressRaw, _ = json.Marshal(j.Progress)
	}
	if j.Resume != nil {
		resumeRaw, _ = json.Marshal(j.Resume)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, payload, status, message, created_at, updated_at, attempts, idempotency_key, progress, resume)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, payload = EXCLUDED.payload, status = EXCLUDED.status,
			message = EXCLUDED.message, updated_at = EXCLUDED.updated_at, attempts = EXCLUDED.attempts,
			idempotency_key = EXCLUDED.idempotency_key, progress = EXCLUDED.progress, resume = EXCLUDED.resume
	`, j.ID, j.Kind, payloadRaw, j.Status, nullableString(j.Message), j.CreatedAt, j.UpdatedAt, j.Attempts, nullableString(j.IdempotencyKey), progressRaw, resumeRaw)
	if err != nil {
		return apperr.Wrap(apperr.Database, "jobs: upserting job", err)
	}
	return nil
}

func (s *PostgresStore) SaveQueue(ctx context.Context, queue []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Database, "jobs: beginning queue tx", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM job_queue`); err != nil {
		return apperr.Wrap(apperr.Database, "jobs: clearing job_queue", err)
	}
	for i, id := range queue {
		if _, err := tx.Exec(ctx, `INSERT INTO job_queue (job_id, enqueued_at) VALUES ($1, $2)`, id, int64(i)); err != nil {
			return apperr.Wrap(apperr.Database, "jobs: inserting job_queue row", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Database, "jobs: committing queue tx", err)
	}
	return nil
}

func (s *PostgresStore) SaveIdempotency(ctx context.Context, idem map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Database, "jobs: beginning idempotency tx", err)
	}
	defer tx.Rollback(ctx)
	for k, jobID := range idem {
		if _, err := tx.Exec(ctx, `
			INSERT INTO idempotency (key, job_id) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET job_id = EXCLUDED.job_id
		`, k, jobID); err != nil {
			return apperr.Wrap(apperr.Database, "jobs: upserting idempotency row", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Database, "jobs: committing idempotency tx", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
