package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "doc.pdf", r.Header.Get("X-Filename"))
		require.Equal(t, ".pdf", r.Header.Get("X-File-Ext"))
		w.WriteHeader(200)
		_, _ = w.Write([]byte("extracted text"))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	text, err := c.Extract(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "extracted text", text)
}

func TestExtract_RetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Retries: 2, RetryBaseMS: 1})
	text, err := c.Extract(context.Background(), "a.txt", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "ok", text)
	require.Equal(t, 2, attempts)
}

func TestExtract_NonRetryable4xxFailsImmediately(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(400)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Retries: 3, RetryBaseMS: 1})
	_, err := c.Extract(context.Background(), "a.txt", []byte("x"))
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestExtract_NotConfigured(t *testing.T) {
	c := New(Config{})
	_, err := c.Extract(context.Background(), "a.txt", []byte("x"))
	require.Error(t, err)
}

func TestMarkdownToText_StripsMarkup(t *testing.T) {
	src := "# Title\n\nSome **bold** and _em_ text with `code` and a [link](http://x) and ![img](http://y/z.png)\n\n```\ncode block\n```"
	got := MarkdownToText(src)
	require.NotContains(t, got, "#")
	require.NotContains(t, got, "`")
	require.NotContains(t, got, "**")
	require.Contains(t, got, "link")
	require.NotContains(t, got, "code block")
}

func TestHTMLToText_StripsTags(t *testing.T) {
	got := HTMLToText("<html><body><script>evil()</script><p>Hello world</p></body></html>")
	require.Contains(t, got, "Hello")
	require.NotContains(t, got, "evil")
}
