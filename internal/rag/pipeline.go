package rag

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
)

const maxVisuals = 3

type Pipeline interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

type QueryRequest struct {
	TenantID   string `json:"tenantId"`
	UserQuery  string `json:"userQuery"`
	TopK       int    `json:"topK,omitempty"`
	MaxSources int    `json:"maxSources,omitempty"`
	Structured bool   `json:"structured,omitempty"`
}

func (r QueryRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.TenantID) == "":
		return apperr.Newf(apperr.KindValidation, "query", "tenantId is required")
	case strings.TrimSpace(r.UserQuery) == "":
		return apperr.Newf(apperr.KindValidation, "query", "userQuery is required")
	case r.TopK < 0 || r.TopK > MaxTopK:
		return apperr.Newf(apperr.KindValidation, "query", "topK must be between 1 and %d", MaxTopK)
	case r.MaxSources < 0:
		return apperr.Newf(apperr.KindValidation, "query", "maxSources must not be negative")
	}
	return nil
}

type Reference struct {
	Ref      int    `json:"ref"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Page     int    `json:"page"`
	Link     string `json:"link,omitempty"`
}

type Visual struct {
	FileID   string `json:"fileId"`
	Page     int    `json:"page"`
	ImageURL string `json:"imageUrl"`
}

type QueryResponse struct {
	Answer     string            `json:"answer,omitempty"`
	Structured *StructuredAnswer `json:"structured,omitempty"`
	References []Reference       `json:"references"`
	Visuals    []Visual          `json:"visuals"`
	Model      string            `json:"model,omitempty"`
	Tokens     int               `json:"tokens,omitempty"`
	// Fallback is set when a structured answer could not be decoded.
	Fallback bool `json:"fallback,omitempty"`
}

type pipeline struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	pagePath    string
}

// NewPipeline wires retrieval to synthesis. pagePath is the route prefix
// under which rendered page images are served.
func NewPipeline(retriever *Retriever, synthesizer *Synthesizer, pagePath string) Pipeline {
	if pagePath == "" {
		pagePath = "/api/v1/pages"
	}
	return &pipeline{
		retriever:   retriever,
		synthesizer: synthesizer,
		pagePath:    strings.TrimRight(pagePath, "/"),
	}
}

func (p *pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sources, err := p.retriever.Retrieve(ctx, req.TenantID, req.UserQuery, req.TopK, req.MaxSources)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	resp := &QueryResponse{
		References: References(sources),
		Visuals:    p.visuals(sources),
	}
	if len(sources) == 0 {
		return resp, nil
	}

	var gen *Generation
	if req.Structured {
		gen, err = p.synthesizer.Structured(ctx, req.UserQuery, sources)
	} else {
		gen, err = p.synthesizer.Answer(ctx, req.UserQuery, sources)
	}
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	resp.Answer = gen.Text
	if gen.Structured != nil {
		display := gen.Structured.Display()
		resp.Structured = &display
	}
	resp.Fallback = gen.Fallback
	resp.Model = gen.Model
	resp.Tokens = gen.Tokens
	return resp, nil
}

func References(sources []Source) []Reference {
	refs := make([]Reference, len(sources))
	for i, s := range sources {
		refs[i] = Reference{Ref: s.Ref, FileID: s.FileID, FileName: s.FileName, Page: s.Page, Link: s.Link}
	}
	return refs
}

// visuals picks page previews for the first few paginated sources.
func (p *pipeline) visuals(sources []Source) []Visual {
	out := []Visual{}
	for _, s := range sources {
		if len(out) == maxVisuals {
			break
		}
		if !(models.Document{MimeType: s.MimeType}).Paginated() {
			continue
		}
		out = append(out, Visual{
			FileID:   s.FileID,
			Page:     s.Page,
			ImageURL: fmt.Sprintf("%s/%s/%d", p.pagePath, url.PathEscape(s.FileID), s.Page),
		})
	}
	return out
}
