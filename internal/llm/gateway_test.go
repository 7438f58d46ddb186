package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeborglin-coder/mr-broker/internal/config"
)

type stubProvider struct {
	name     string
	calls    atomic.Int32
	failures int32
	lastReq  ChatRequest
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	n := s.calls.Add(1)
	s.lastReq = req
	if n <= s.failures {
		return nil, errors.New("upstream unavailable")
	}
	return &ChatResponse{Provider: s.name, Content: "ok"}, nil
}

func (s *stubProvider) GenerateEmbedding(_ context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	s.calls.Add(1)
	out := make([][]float32, len(req.Input))
	for i := range out {
		out[i] = []float32{float32(i)}
	}
	return &EmbeddingResponse{Provider: s.name, Embeddings: out}, nil
}

func newTestGateway(cfg config.LLMConfig, providers ...Provider) *gateway {
	g := NewGatewayWithProviders(cfg, providers...).(*gateway)
	g.backoff = time.Millisecond
	return g
}

func TestGateway_RetriesThenSucceeds(t *testing.T) {
	primary := &stubProvider{name: "openai", failures: 2}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "openai", MaxRetries: 2}, primary)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), primary.calls.Load())
}

func TestGateway_RetriesAreBounded(t *testing.T) {
	primary := &stubProvider{name: "openai", failures: 100}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "openai", MaxRetries: 1}, primary)

	_, err := g.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
	assert.Equal(t, int32(2), primary.calls.Load())
}

func TestGateway_FallbackDropsPrimaryModel(t *testing.T) {
	primary := &stubProvider{name: "openai", failures: 100}
	fallback := &stubProvider{name: "anthropic"}
	g := newTestGateway(config.LLMConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
	}, primary, fallback)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "", fallback.lastReq.Model)
}

func TestGateway_CancelledContextSkipsFallback(t *testing.T) {
	primary := &stubProvider{name: "openai", failures: 100}
	fallback := &stubProvider{name: "anthropic"}
	g := newTestGateway(config.LLMConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
		MaxRetries:       3,
	}, primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Chat(ctx, ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(0), fallback.calls.Load())
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := newTestGateway(config.LLMConfig{DefaultProvider: "openai"})
	_, err := g.Chat(context.Background(), ChatRequest{})
	assert.ErrorContains(t, err, `provider "openai" not configured`)

	_, err = g.Embed(context.Background(), EmbeddingRequest{Provider: "ollama"})
	assert.Error(t, err)
}

func TestGateway_EmbedUsesRequestedProvider(t *testing.T) {
	chat := &stubProvider{name: "anthropic"}
	embed := &stubProvider{name: "openai"}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "anthropic"}, chat, embed)

	resp, err := g.Embed(context.Background(), EmbeddingRequest{Provider: "openai", Input: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)
	assert.Equal(t, int32(0), chat.calls.Load())
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 0.00015+0.0006, CalculateCost("gpt-4o-mini", 1000, 1000), 1e-9)
	assert.Equal(t, 0.0, CalculateCost("unknown-model", 1000, 1000))

	assert.InDelta(t, 0.00015, CalculateCost("gpt-4o-mini-2024-07-18", 1000, 0), 1e-9)
	assert.InDelta(t, 0.005, CalculateCost("gpt-4o-2024-08-06", 1000, 0), 1e-9)
	assert.InDelta(t, 0.015, CalculateCost("claude-sonnet-4-20250514", 0, 1000), 1e-9)
	assert.Equal(t, 0.0, CalculateCost("gpt-4oo", 1000, 0))
}
