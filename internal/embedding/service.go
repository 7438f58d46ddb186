package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/llm"
)

const defaultBatchSize = 100

// Service turns text into fixed-dimension vectors. Batches are retried a
// bounded number of times and every call runs under its own timeout.
type Service struct {
	gateway    llm.Gateway
	provider   string
	model      string
	dimension  int
	batchSize  int
	maxRetries int
	timeout    time.Duration
	backoff    time.Duration
}

func NewService(gw llm.Gateway, cfg config.EmbeddingConfig) *Service {
	s := &Service{
		gateway:    gw,
		provider:   cfg.Provider,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  cfg.BatchSize,
		maxRetries: max(cfg.MaxRetries, 0),
		timeout:    cfg.Timeout,
		backoff:    250 * time.Millisecond,
	}
	if s.model == "" {
		s.model = "text-embedding-3-small"
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	return s
}

// Dimension is the configured vector length, or 0 when unchecked.
func (s *Service) Dimension() int { return s.dimension }

// Embed returns one vector per input, in input order.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += s.batchSize {
		end := min(i+s.batchSize, len(texts))

		vectors, err := s.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindEmbedding, "embedding.Embed",
				fmt.Sprintf("batch %d", i/s.batchSize), err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * s.backoff):
			}
			slog.Debug("retrying embedding batch", "attempt", attempt, "size", len(batch))
		}

		vectors, err := s.call(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (s *Service) call(ctx context.Context, batch []string) ([][]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Provider: s.provider,
		Model:    s.model,
		Input:    batch,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(batch) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(batch))
	}
	for i, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding at %d", i)
		}
		if s.dimension > 0 && len(v) != s.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), s.dimension)
		}
	}
	return resp.Embeddings, nil
}
