package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/llm"
)

type scriptedGateway struct {
	content string
	err     error
	last    llm.ChatRequest
}

func (g *scriptedGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	return &llm.ChatResponse{Content: g.content, Model: "test-model", TotalTokens: 42}, nil
}

func (g *scriptedGateway) Embed(context.Context, llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return nil, errors.New("not used")
}

func (g *scriptedGateway) Provider(string) (llm.Provider, error) {
	return nil, errors.New("not used")
}

func twoSources() []Source {
	return []Source{
		{Ref: 1, FileID: "a", FileName: "Tracker", Page: 3, Text: "Awareness rose to 41%."},
		{Ref: 2, FileID: "b", FileName: "U&A", Page: 1, Text: "Trial is flat."},
	}
}

func TestDecodeStructured_Valid(t *testing.T) {
	raw := "```json\n" + `{
		"headline": {"paragraph": "Awareness is up {{cite:1}}.", "bullets": ["a {{cite:1}}", "b.", "c;", "d"]},
		"supporting": ["s1 {{cite:2}}", "", "s2", "s3", "s4", "s5", "s6", "s7", "s8"],
		"quotes": [{"text": "rose to 41%.", "ref": 1}, {"text": "ghost", "ref": 9}, {"text": "flat", "ref": 2}]
	}` + "\n```"

	d := DecodeStructured(raw, 2)
	require.False(t, d.Fallback)
	assert.Equal(t, "Awareness is up{{cite:1}}", d.Answer.Headline.Paragraph)
	assert.Equal(t, []string{"a{{cite:1}}", "b", "c"}, d.Answer.Headline.Bullets)
	assert.Len(t, d.Answer.Supporting, MaxSupportingBullets)
	assert.Equal(t, "s1{{cite:2}}", d.Answer.Supporting[0])
	assert.Equal(t, []Quote{{Text: "rose to 41%", Ref: 1}, {Text: "flat", Ref: 2}}, d.Answer.Quotes)
}

func TestDecodeStructured_MalformedFallsBack(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"headline": "oops"}`, `{"supporting": [1, 2]`} {
		d := DecodeStructured(raw, 3)
		assert.True(t, d.Fallback, raw)
		assert.NotEmpty(t, d.Reason)
		assert.NotNil(t, d.Answer.Headline.Bullets)
		assert.NotNil(t, d.Answer.Supporting)
		assert.NotNil(t, d.Answer.Quotes)
		assert.Empty(t, d.Answer.Supporting)
	}
}

func TestDecodeStructured_SanitizesCitations(t *testing.T) {
	d := DecodeStructured(`{"supporting": ["x {{cite:1, 7}} y {{cite:5}}."]}`, 2)
	require.False(t, d.Fallback)
	assert.Equal(t, []string{"x {{cite:1}} y"}, d.Answer.Supporting)
}

func TestSuperscript(t *testing.T) {
	assert.Equal(t, "Up 5%¹", Superscript("Up 5%{{cite:1}}"))
	assert.Equal(t, "Flat¹²˒³", Superscript("Flat{{cite:12,3}}"))
	assert.Equal(t, "plain", Superscript("plain"))
}

func TestSynthesizer_StructuredRequestsJSON(t *testing.T) {
	gw := &scriptedGateway{content: `{"headline": {"paragraph": "Up {{cite:1}}", "bullets": []}, "supporting": [], "quotes": []}`}
	s := NewSynthesizer(gw, config.LLMConfig{DefaultModel: "m"})

	gen, err := s.Structured(context.Background(), "how is awareness?", twoSources())
	require.NoError(t, err)
	assert.Equal(t, llm.FormatJSON, gw.last.ResponseFormat)
	assert.Equal(t, "Up{{cite:1}}", gen.Structured.Headline.Paragraph)
	assert.False(t, gen.Fallback)

	user := gw.last.Messages[1].Content
	assert.Contains(t, user, "[1] Tracker (page 3)")
	assert.Contains(t, user, "[2] U&A (page 1)")
	assert.True(t, strings.HasSuffix(user, "Question: how is awareness?"))
}

func TestSynthesizer_MalformedStructuredIsNotAnError(t *testing.T) {
	s := NewSynthesizer(&scriptedGateway{content: "Sorry, I cannot help."}, config.LLMConfig{})
	gen, err := s.Structured(context.Background(), "q", twoSources())
	require.NoError(t, err)
	assert.True(t, gen.Fallback)
	assert.Empty(t, gen.Structured.Quotes)
}

func TestSynthesizer_GenerationFailureKind(t *testing.T) {
	s := NewSynthesizer(&scriptedGateway{err: errors.New("503")}, config.LLMConfig{})
	_, err := s.Answer(context.Background(), "q", twoSources())
	assert.True(t, apperr.Is(err, apperr.KindGeneration))
}
