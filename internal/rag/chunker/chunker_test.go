package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ragkit/internal/rag/ingest"
)

func genText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
	}
	return b.String()
}

func TestWordBoundedChunk_RespectsChunkSize(t *testing.T) {
	text := genText(2000)
	ch := SimpleChunker{}
	opt := ingest.ChunkingOptions{MaxTokens: 100, Overlap: 10}
	chunks, err := ch.Chunk(text, opt)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		if i == len(chunks)-1 {
			continue
		}
		require.LessOrEqualf(t, len(c.Text), 100+len("word"), "chunk %d exceeded target size: %q", i, c.Text)
	}
}

func TestWordBoundedChunk_EmptyInputYieldsEmptyOutput(t *testing.T) {
	ch := SimpleChunker{}
	chunks, err := ch.Chunk("", ingest.ChunkingOptions{MaxTokens: 100})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestWordBoundedChunk_OverlapClampedBelowChunkSize(t *testing.T) {
	chunkSize, overlap := sizes(ingest.ChunkingOptions{MaxTokens: 50, Overlap: 1000})
	require.Equal(t, 50, chunkSize)
	require.Equal(t, 25, overlap)
}

func TestWordBoundedChunk_OverlapSeedsNextBuffer(t *testing.T) {
	text := genText(200)
	ch := SimpleChunker{}
	chunks, err := ch.Chunk(text, ingest.ChunkingOptions{MaxTokens: 40, Overlap: 8})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	tail := lastRunes(chunks[0].Text, 8)
	require.True(t, strings.HasPrefix(chunks[1].Text, tail))
}

// Chunker round-trip law (spec §8): joining emitted chunks without overlap
// by single spaces reconstructs the original whitespace-normalized token
// sequence.
func TestWordBoundedChunk_RoundTripWithoutOverlap(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog " + genText(500)
	ch := SimpleChunker{}
	chunks, err := ch.Chunk(text, ingest.ChunkingOptions{MaxTokens: 64, Overlap: 0})
	require.NoError(t, err)
	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, c.Text)
	}
	require.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(rebuilt, " "))
}

func TestMarkdownChunk_PreservesHeadings(t *testing.T) {
	text := "# Title\n\npara1 text here.\n\n## Sub\n\npara2 text here."
	ch := SimpleChunker{}
	chunks, err := ch.Chunk(text, ingest.ChunkingOptions{Strategy: "md", MaxTokens: 10})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	require.Contains(t, chunks[0].Text, "# Title")
}

func TestCodeChunk_RarelySplitsFunctions(t *testing.T) {
	text := "package x\n\n// comment\n\nfunc A() {}\n\nfunc B() {}\n\nfunc C() {}\n"
	ch := SimpleChunker{}
	chunks, err := ch.Chunk(text, ingest.ChunkingOptions{Strategy: "code", MaxTokens: 8})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		require.LessOrEqualf(t, strings.Count(c.Text, "func "), 1, "chunk should not contain many functions: %q", c.Text)
	}
}
