package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ragkit/internal/apperr"
	"ragkit/internal/objectstore"
	"ragkit/internal/rag/extract"
	"ragkit/internal/rag/ingest"
)

// dispatch routes a job to its kind-specific handler. Errors are wrapped
// through retryable/fatal so the caller's retry loop can tell a transient
// network hiccup from a permanent, attempt-wasting failure.
func (e *Engine) dispatch(ctx context.Context, j *Job) error {
	switch j.Kind {
	case KindURL:
		return e.dispatchURL(ctx, j)
	case KindPDFGlob:
		return e.dispatchPDFGlob(ctx, j)
	case KindFile:
		return e.dispatchFile(ctx, j)
	case KindObjectURL, KindS3, KindOSS:
		return e.dispatchObjectURL(ctx, j)
	default:
		return fatal(apperr.New(apperr.InvalidRequest, fmt.Sprintf("jobs: unknown kind %q", j.Kind)))
	}
}

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func payloadInt(p map[string]any, key string, def int) int {
	if p == nil {
		return def
	}
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func (e *Engine) ingestText(ctx context.Context, docID, source, url, text string, chunkSize, overlap int) error {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	_, err := e.svc.Ingest(ctx, ingest.IngestRequest{
		ID:     docID,
		URL:    url,
		Source: source,
		Text:   text,
		Options: ingest.IngestOptions{
			Chunking: ingest.ChunkingOptions{MaxTokens: chunkSize, Overlap: overlap},
		},
	})
	return err
}

func (e *Engine) dispatchURL(ctx context.Context, j *Job) error {
	url := payloadString(j.Payload, "url")
	docID := payloadString(j.Payload, "document_id")
	if url == "" || docID == "" {
		return fatal(apperr.New(apperr.InvalidRequest, "jobs: url job requires url and document_id"))
	}
	timeoutMS := e.cfg.URLTimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = 15000
	}
	client := &http.Client{Timeout: time.Duration(timeoutMS) * time.Millisecond}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fatal(apperr.Wrap(apperr.InvalidRequest, "jobs: building url request", err))
	}
	resp, err := client.Do(req)
	if err != nil {
		return retryable(apperr.Wrap(apperr.Network, "jobs: fetching url", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retryable(apperr.Wrap(apperr.Network, "jobs: reading url body", err))
	}
	if resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return retryable(apperr.New(apperr.ServiceUnavail, fmt.Sprintf("jobs: url fetch status %d", resp.StatusCode)))
	}
	if resp.StatusCode >= 400 {
		return fatal(apperr.New(apperr.InvalidRequest, fmt.Sprintf("jobs: url fetch status %d", resp.StatusCode)))
	}

	text := string(body)
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "html") {
		text = extract.HTMLToText(text)
	}
	if err := e.ingestText(ctx, docID, "url", url, text, payloadInt(j.Payload, "chunk_size", 0), payloadInt(j.Payload, "overlap", 0)); err != nil {
		return retryable(err)
	}
	j.Progress = &Progress{Total: 1, Completed: 1}
	return nil
}

// dispatchPDFGlob expands a non-recursive glob (only * and ? wildcards, via
// filepath.Glob) into a fixed path list on first run, then iterates files
// one at a time, persisting a resume checkpoint after each so the job
// survives an arbitrary process kill (spec's crash-recovery scenario).
func (e *Engine) dispatchPDFGlob(ctx context.Context, j *Job) error {
	if j.Resume == nil {
		pattern := payloadString(j.Payload, "glob")
		if pattern == "" {
			return fatal(apperr.New(apperr.InvalidRequest, "jobs: pdf_glob job requires glob"))
		}
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return fatal(apperr.Wrap(apperr.InvalidRequest, "jobs: invalid glob pattern", err))
		}
		sort.Strings(paths)
		j.Resume = &PDFGlobResume{
			Paths:     paths,
			Next:      0,
			Prefix:    payloadString(j.Payload, "prefix"),
			ChunkSize: payloadInt(j.Payload, "chunk_size", 0),
			Overlap:   payloadInt(j.Payload, "overlap", 0),
		}
		j.Progress = &Progress{Total: len(paths), Completed: 0}
	}

	resume := j.Resume
	for resume.Next < len(resume.Paths) {
		select {
		case <-ctx.Done():
			return retryable(ctx.Err())
		default:
		}
		path := resume.Paths[resume.Next]
		docID := fmt.Sprintf("%spdf_%d", resume.Prefix, resume.Next)

		var text string
		var err error
		if e.extract != nil {
			text, err = e.extract.ExtractPath(ctx, path)
		} else {
			err = apperr.New(apperr.Configuration, "jobs: no extractor configured for pdf_glob")
		}
		if err != nil {
			// per spec: per-file extraction errors are logged and skipped,
			// never fail the whole job.
			e.log.Error().Err(err).Str("job_id", j.ID).Str("path", path).Msg("jobs_pdf_glob_file_skipped")
		} else if ierr := e.ingestText(ctx, docID, "pdf_glob", path, text, resume.ChunkSize, resume.Overlap); ierr != nil {
			e.log.Error().Err(ierr).Str("job_id", j.ID).Str("path", path).Msg("jobs_pdf_glob_file_skipped")
		}

		resume.Next++
		if j.Progress != nil {
			j.Progress.Completed = resume.Next
			j.Progress.Current = resume.Next
		}
		e.setJob(ctx, *j)
	}
	return nil
}

func (e *Engine) dispatchFile(ctx context.Context, j *Job) error {
	path := payloadString(j.Payload, "path")
	docID := payloadString(j.Payload, "document_id")
	if path == "" || docID == "" {
		return fatal(apperr.New(apperr.InvalidRequest, "jobs: file job requires path and document_id"))
	}
	if _, err := os.Stat(path); err != nil {
		return fatal(apperr.Wrap(apperr.NotFound, "jobs: file job path not found", err))
	}
	var text string
	var err error
	if e.extract != nil {
		text, err = e.extract.ExtractPath(ctx, path)
	} else {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return fatal(apperr.Wrap(apperr.InvalidRequest, "jobs: reading local file", rerr))
		}
		text = string(data)
	}
	if err != nil {
		return retryable(err)
	}
	if err := e.ingestText(ctx, docID, "file", path, text, payloadInt(j.Payload, "chunk_size", 0), payloadInt(j.Payload, "overlap", 0)); err != nil {
		return retryable(err)
	}
	j.Progress = &Progress{Total: 1, Completed: 1}
	return nil
}

// dispatchObjectURL services s3/oss jobs directly against the configured
// objectStore when a bucket key is supplied (no credentials leak into job
// payloads that way); otherwise, and always for object_url, it resolves to
// a fetchable URL (parsing s3://bucket/key against OBJECT_PUBLIC_BASE_URL
// when a presigned URL isn't supplied) and fetches with header overrides,
// retrying on 429/5xx per spec's fetch_object_bytes failure semantics.
func (e *Engine) dispatchObjectURL(ctx context.Context, j *Job) error {
	docID := payloadString(j.Payload, "document_id")
	if docID == "" {
		return fatal(apperr.New(apperr.InvalidRequest, "jobs: object job requires document_id"))
	}

	if (j.Kind == KindS3 || j.Kind == KindOSS) && e.objectStore != nil {
		if key := payloadString(j.Payload, "key"); key != "" {
			return e.dispatchObjectStoreKey(ctx, j, docID, key)
		}
	}

	url := firstNonEmptyPayload(j.Payload, "url", "s3_url", "oss_url", "presigned_url")
	if url == "" {
		return fatal(apperr.New(apperr.InvalidRequest, "jobs: object job requires key, or url/s3_url/oss_url/presigned_url"))
	}
	if strings.HasPrefix(url, "s3://") && e.objectPublicBaseURL != "" {
		url = strings.Replace(url, "s3://", e.objectPublicBaseURL+"/", 1)
	}

	timeoutMS := e.cfg.FetchTimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = 15000
	}
	retries := e.cfg.FetchRetries
	if retries < 0 {
		retries = 0
	}
	baseMS := e.cfg.FetchRetryBaseMS
	if baseMS <= 0 {
		baseMS = 250
	}
	client := &http.Client{Timeout: time.Duration(timeoutMS) * time.Millisecond}

	var headers map[string]any
	if h, ok := j.Payload["headers"].(map[string]any); ok {
		headers = h
	}

	var lastErr error
	delay := time.Duration(baseMS) * time.Millisecond
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return retryable(ctx.Err())
			}
			delay *= 2
		}
		text, retry, err := e.fetchObjectOnce(ctx, client, url, headers, docID)
		if err == nil {
			if ierr := e.ingestText(ctx, docID, string(j.Kind), url, text, payloadInt(j.Payload, "chunk_size", 0), payloadInt(j.Payload, "overlap", 0)); ierr != nil {
				return retryable(ierr)
			}
			j.Progress = &Progress{Total: 1, Completed: 1}
			return nil
		}
		lastErr = err
		if !retry {
			return fatal(err)
		}
	}
	return retryable(lastErr)
}

// dispatchObjectStoreKey fetches an object by bucket-relative key through
// the configured objectstore.ObjectStore, bypassing the HTTP fetch path
// entirely (no public URL or presigning required).
func (e *Engine) dispatchObjectStoreKey(ctx context.Context, j *Job, docID, key string) error {
	r, attrs, err := e.objectStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return fatal(apperr.Wrap(apperr.NotFound, "jobs: object key not found", err))
		}
		return retryable(apperr.Wrap(apperr.Network, "jobs: fetching object key", err))
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return retryable(apperr.Wrap(apperr.Network, "jobs: reading object key body", err))
	}

	text := string(body)
	ext := strings.ToLower(filepath.Ext(key))
	if strings.Contains(attrs.ContentType, "html") || ext == ".html" {
		text = extract.HTMLToText(text)
	}
	if err := e.ingestText(ctx, docID, string(j.Kind), key, text, payloadInt(j.Payload, "chunk_size", 0), payloadInt(j.Payload, "overlap", 0)); err != nil {
		return retryable(err)
	}
	j.Progress = &Progress{Total: 1, Completed: 1}
	return nil
}

func (e *Engine) fetchObjectOnce(ctx context.Context, client *http.Client, url string, headers map[string]any, docID string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, apperr.Wrap(apperr.InvalidRequest, "jobs: building object request", err)
	}
	for k, v := range headers {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", true, apperr.Wrap(apperr.Network, "jobs: fetching object bytes", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, apperr.Wrap(apperr.Network, "jobs: reading object bytes", err)
	}
	if resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return "", true, apperr.New(apperr.ServiceUnavail, fmt.Sprintf("jobs: object fetch status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", false, apperr.New(apperr.InvalidRequest, fmt.Sprintf("jobs: object fetch status %d", resp.StatusCode))
	}

	text := string(body)
	ext := strings.ToLower(filepath.Ext(docID))
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "html") || ext == ".html" {
		text = extract.HTMLToText(text)
	}
	return text, false, nil
}

func firstNonEmptyPayload(p map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := payloadString(p, k); v != "" {
			return v
		}
	}
	return ""
}
