package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilPassesThrough(t *testing.T) {
	assert.NoError(t, New(KindEmbedding, "op", nil))
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := New(KindVectorIndex, "vectorstore.Query", errors.New("connection refused"))
	wrapped := fmt.Errorf("retrieve: %w", base)

	assert.Equal(t, KindVectorIndex, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindVectorIndex))
	assert.False(t, Is(wrapped, KindEmbedding))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	err := Wrap(KindExtraction, "document.Extract", "no text", nil)
	assert.Equal(t, "document.Extract: extraction: no text", err.Error())

	err = New(KindEmbedding, "embedding.Embed", errors.New("quota exceeded"))
	assert.Equal(t, "embedding.Embed: embedding_service: quota exceeded", err.Error())
}

func TestDetailOf(t *testing.T) {
	assert.Equal(t, "no text", DetailOf(Wrap(KindExtraction, "x", "no text", errors.New("inner"))))
	assert.Equal(t, "plain", DetailOf(errors.New("plain")))
	assert.Equal(t, "", DetailOf(nil))
}

func TestIsTimeout(t *testing.T) {
	err := New(KindGeneration, "rag.Synthesize", fmt.Errorf("chat: %w", context.DeadlineExceeded))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.False(t, IsTimeout(errors.New("boom")))
}
