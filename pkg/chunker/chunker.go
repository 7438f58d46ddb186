package chunker

import (
	"strings"
)

const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200
)

type Chunker interface {
	Chunk(text string, opts ChunkOptions) []TextChunk
}

type ChunkOptions struct {
	ChunkSize    int // window length in characters
	ChunkOverlap int // characters shared by consecutive windows
}

// TextChunk is one window of the input. Start and End are character
// (rune) offsets into the original text, End exclusive.
type TextChunk struct {
	Content string
	Index   int
	Start   int
	End     int
}

func DefaultOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

type fixedChunker struct{}

func New() Chunker {
	return &fixedChunker{}
}

// Chunk splits text into fixed-size overlapping windows. Windows advance by
// ChunkSize-ChunkOverlap characters (at least one), and the walk stops at the
// first window that reaches the end of the text, so the output is finite for
// any overlap. Whitespace-only input yields no chunks.
func (c *fixedChunker) Chunk(text string, opts ChunkOptions) []TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := max(opts.ChunkOverlap, 0)
	step := max(size-overlap, 1)

	runes := []rune(text)
	var chunks []TextChunk
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, TextChunk{
			Content: string(runes[start:end]),
			Index:   len(chunks),
			Start:   start,
			End:     end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Split is Chunk with the default chunker, returning only the contents.
func Split(text string, opts ChunkOptions) []string {
	chunks := New().Chunk(text, opts)
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Content
	}
	return out
}

// Reassemble rebuilds the source text from chunks produced by Chunk by
// dropping the overlapping prefix of every chunk after the first.
func Reassemble(chunks []TextChunk) string {
	var b strings.Builder
	prevEnd := 0
	for i, ch := range chunks {
		runes := []rune(ch.Content)
		skip := 0
		if i > 0 {
			skip = min(max(prevEnd-ch.Start, 0), len(runes))
		}
		b.WriteString(string(runes[skip:]))
		prevEnd = ch.End
	}
	return b.String()
}
