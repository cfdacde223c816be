// Package chunker implements the word-bounded document splitter: it turns a
// document's raw text into an ordered sequence of chunk records sized by
// byte length, with character-boundary overlap seeding between chunks.
package chunker

import (
	"regexp"
	"strings"

	"ragkit/internal/rag/ingest"
)

// Chunk is one emitted slice of a document's text, in emission order.
type Chunk struct {
	Index int
	Text  string
}

// Chunker produces an ordered sequence of chunks from a document's text.
type Chunker interface {
	Chunk(text string, opt ingest.ChunkingOptions) ([]Chunk, error)
}

// SimpleChunker implements the default word-bounded strategy plus two
// structure-aware variants (markdown, code) selected via ChunkingOptions.Strategy.
type SimpleChunker struct{}

// Chunk splits text into chunks using the strategy named in opt, defaulting
// to the word-bounded algorithm.
func (SimpleChunker) Chunk(text string, opt ingest.ChunkingOptions) ([]Chunk, error) {
	strategy := strings.ToLower(opt.Strategy)
	switch strategy {
	case "markdown", "md":
		return markdownChunk(text, opt), nil
	case "code":
		return codeChunk(text, opt), nil
	default:
		return wordBoundedChunk(text, opt), nil
	}
}

// sizes resolves (chunk_size, overlap) from ChunkingOptions, applying the
// spec's edge-case clamp: overlap >= chunk_size is a caller error, clamped
// to chunk_size/2.
func sizes(opt ingest.ChunkingOptions) (chunkSize, overlap int) {
	chunkSize = opt.MaxTokens
	if chunkSize <= 0 {
		chunkSize = 2048
	}
	overlap = opt.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return chunkSize, overlap
}

// wordBoundedChunk implements 4.A's algorithm verbatim: scan text by
// whitespace tokens, accumulate into a buffer, and emit whenever the next
// token would push the buffer past chunk_size. Overlap seeds the next
// buffer with the trailing `overlap` characters (rune-boundary) of the
// chunk just emitted.
func wordBoundedChunk(text string, opt ingest.ChunkingOptions) []Chunk {
	chunkSize, overlap := sizes(opt)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	var out []Chunk
	idx := 0
	var buf strings.Builder

	emit := func() string {
		s := buf.String()
		buf.Reset()
		if overlap > 0 && s != "" {
			buf.WriteString(lastRunes(s, overlap))
		}
		return s
	}

	for _, tok := range tokens {
		if buf.Len() > 0 && buf.Len()+len(tok)+1 > chunkSize {
			if s := emit(); s != "" {
				out = append(out, Chunk{Index: idx, Text: s})
				idx++
			}
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(tok)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		out = append(out, Chunk{Index: idx, Text: s})
	}
	return out
}

// lastRunes returns the last n runes of s, respecting rune (not byte)
// boundaries.
func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// markdownChunk prefers splitting on headings and paragraph breaks and
// preserves headings as hard boundaries.
func markdownChunk(text string, opt ingest.ChunkingOptions) []Chunk {
	tgt, _ := sizes(opt)
	lines := strings.Split(text, "\n")
	var out []Chunk
	var buf strings.Builder
	idx := 0
	writeFlush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, Chunk{Index: idx, Text: s})
			idx++
			buf.Reset()
		}
	}
	for i, ln := range lines {
		isHeading := strings.HasPrefix(ln, "#")
		isParaBreak := strings.TrimSpace(ln) == "" && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != ""
		if isHeading && buf.Len() > 0 {
			writeFlush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(ln)
		if (isHeading || isParaBreak) && buf.Len() >= tgt {
			writeFlush()
		}
	}
	writeFlush()
	return out
}

var codeSplitRe = regexp.MustCompile(`(?m)^\s*(func |class |def |#[#\s]|//)`)

// codeChunk attempts to respect function/class boundaries and comments.
func codeChunk(text string, opt ingest.ChunkingOptions) []Chunk {
	tgt, _ := sizes(opt)
	lines := strings.Split(text, "\n")
	var out []Chunk
	var buf strings.Builder
	idx := 0
	for i, ln := range lines {
		if codeSplitRe.MatchString(ln) && buf.Len() > 0 && (buf.Len()+len(ln)+1 > tgt || strings.Contains(buf.String(), "func ")) {
			out = append(out, Chunk{Index: idx, Text: strings.TrimRight(buf.String(), "\n")})
			idx++
			buf.Reset()
		}
		buf.WriteString(ln)
		if i < len(lines)-1 {
			buf.WriteString("\n")
		}
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		out = append(out, Chunk{Index: idx, Text: s})
	}
	return out
}
