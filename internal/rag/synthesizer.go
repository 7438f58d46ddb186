package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/llm"
	"github.com/lukeborglin-coder/mr-broker/pkg/tokenizer"
)

const (
	MaxHeadlineBullets   = 3
	MaxSupportingBullets = 7
	MaxQuotes            = 4
)

const answerPrompt = `You are a market research analyst. Answer the question using ONLY the numbered sources in the context.
Cite every claim with the source number in square brackets, for example [2] or [1][3].
If the sources do not answer the question, say so plainly. Do not invent figures.`

const structuredPrompt = `You are a market research analyst. Answer the question using ONLY the numbered sources in the context.
Respond with a single JSON object of this shape and nothing else:
{
  "headline": {"paragraph": "two or three sentence answer", "bullets": ["at most 3 key points"]},
  "supporting": ["3 to 7 findings, staying close to the source wording"],
  "quotes": [{"text": "short verbatim quote", "ref": 1}]
}
Give at most 4 quotes. End every paragraph, bullet and quote with a citation marker {{cite:N}} where N is the source number;
use {{cite:1,3}} for several sources. Do not invent figures.`

// Headline is the short answer at the top of a structured response.
type Headline struct {
	Paragraph string   `json:"paragraph"`
	Bullets   []string `json:"bullets"`
}

type Quote struct {
	Text string `json:"text"`
	Ref  int    `json:"ref"`
}

// StructuredAnswer is the fixed-shape answer. An empty value is valid.
type StructuredAnswer struct {
	Headline   Headline `json:"headline"`
	Supporting []string `json:"supporting"`
	Quotes     []Quote  `json:"quotes"`
}

func emptyStructured() StructuredAnswer {
	return StructuredAnswer{
		Headline:   Headline{Bullets: []string{}},
		Supporting: []string{},
		Quotes:     []Quote{},
	}
}

// Decoded is the outcome of parsing model output: either a parsed answer or
// a fallback to the empty answer, with the reason recorded.
type Decoded struct {
	Answer   StructuredAnswer
	Fallback bool
	Reason   string
}

// Generation is a synthesized answer in one of the two shapes.
type Generation struct {
	Text       string
	Structured *StructuredAnswer
	Fallback   bool
	Model      string
	Tokens     int
}

type Synthesizer struct {
	gateway  llm.Gateway
	provider string
	model    string
	timeout  time.Duration
}

func NewSynthesizer(gw llm.Gateway, cfg config.LLMConfig) *Synthesizer {
	return &Synthesizer{
		gateway:  gw,
		provider: cfg.DefaultProvider,
		model:    cfg.DefaultModel,
		timeout:  cfg.GenerateTimeout,
	}
}

// Answer produces free text with [n] citations.
func (s *Synthesizer) Answer(ctx context.Context, query string, sources []Source) (*Generation, error) {
	resp, err := s.complete(ctx, answerPrompt, query, sources, llm.FormatText)
	if err != nil {
		return nil, err
	}
	return &Generation{
		Text:   strings.TrimSpace(resp.Content),
		Model:  resp.Model,
		Tokens: resp.TotalTokens,
	}, nil
}

// Structured produces a StructuredAnswer. Output that cannot be decoded
// yields the empty answer, not an error.
func (s *Synthesizer) Structured(ctx context.Context, query string, sources []Source) (*Generation, error) {
	resp, err := s.complete(ctx, structuredPrompt, query, sources, llm.FormatJSON)
	if err != nil {
		return nil, err
	}
	d := DecodeStructured(resp.Content, len(sources))
	if d.Fallback {
		slog.Warn("structured answer fell back to empty", "reason", d.Reason, "model", resp.Model)
	}
	return &Generation{
		Structured: &d.Answer,
		Fallback:   d.Fallback,
		Model:      resp.Model,
		Tokens:     resp.TotalTokens,
	}, nil
}

func (s *Synthesizer) complete(ctx context.Context, system, query string, sources []Source, format string) (*llm.ChatResponse, error) {
	user := fmt.Sprintf("Context:\n%s\nQuestion: %s", BuildContext(sources), query)
	slog.Debug("synthesizing answer",
		"sources", len(sources),
		"prompt_tokens", tokenizer.CountTokensForModel(system+user, s.model),
		"format", format,
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.gateway.Chat(ctx, llm.ChatRequest{
		Provider: s.provider,
		Model:    s.model,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: format,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeneration, "synthesize", "generate answer", err)
	}
	slog.Info("answer synthesized",
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

// BuildContext renders sources as numbered blocks the model can cite.
func BuildContext(sources []Source) string {
	var sb strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s (page %d", src.Ref, src.FileName, src.Page)
		if !src.ModifiedAt.IsZero() {
			fmt.Fprintf(&sb, ", %s", src.ModifiedAt.Format("Jan 2006"))
		}
		fmt.Fprintf(&sb, ")\n%s\n\n", strings.TrimSpace(src.Text))
	}
	return sb.String()
}

var (
	codeFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	citeMarker    = regexp.MustCompile(`\{\{\s*cite:\s*([\d,\s]+)\}\}`)
	trailingCites = regexp.MustCompile(`(?:\s*\{\{\s*cite:\s*[\d,\s]+\}\})+\s*$`)
)

const trailingTrim = " \t\r\n.,;:!?…-–—"

// DecodeStructured parses model output into a StructuredAnswer with n
// sources. Lists are cut to their maximums, strings trimmed, and citations
// outside 1..n removed.
func DecodeStructured(raw string, n int) Decoded {
	body := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var parsed StructuredAnswer
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return Decoded{Answer: emptyStructured(), Fallback: true, Reason: err.Error()}
	}

	out := emptyStructured()
	out.Headline.Paragraph = cleanText(parsed.Headline.Paragraph, n)
	out.Headline.Bullets = cleanList(parsed.Headline.Bullets, MaxHeadlineBullets, n)
	out.Supporting = cleanList(parsed.Supporting, MaxSupportingBullets, n)
	for _, q := range parsed.Quotes {
		if len(out.Quotes) == MaxQuotes {
			break
		}
		text := cleanText(q.Text, n)
		if text == "" || q.Ref < 1 || q.Ref > n {
			continue
		}
		out.Quotes = append(out.Quotes, Quote{Text: text, Ref: q.Ref})
	}
	return Decoded{Answer: out}
}

func cleanList(items []string, limit, n int) []string {
	out := make([]string, 0, min(len(items), limit))
	for _, item := range items {
		if len(out) == limit {
			break
		}
		if s := cleanText(item, n); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cleanText drops out-of-range citations and trims trailing punctuation
// from the text in front of any closing citation markers.
func cleanText(s string, n int) string {
	s = citeMarker.ReplaceAllStringFunc(s, func(marker string) string {
		refs := validRefs(citeMarker.FindStringSubmatch(marker)[1], n)
		if len(refs) == 0 {
			return ""
		}
		return "{{cite:" + strings.Join(refs, ",") + "}}"
	})

	s = strings.TrimRight(s, trailingTrim)
	tail := ""
	if loc := trailingCites.FindStringIndex(s); loc != nil {
		tail = strings.Join(strings.Fields(s[loc[0]:]), "")
		s = s[:loc[0]]
	}
	s = strings.TrimRight(s, trailingTrim)
	if s == "" {
		return ""
	}
	return s + tail
}

func validRefs(list string, n int) []string {
	var refs []string
	for _, part := range strings.Split(list, ",") {
		ref, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || ref < 1 || ref > n {
			continue
		}
		refs = append(refs, strconv.Itoa(ref))
	}
	return refs
}

var superscriptDigits = strings.NewReplacer(
	"0", "⁰", "1", "¹", "2", "²", "3", "³", "4", "⁴",
	"5", "⁵", "6", "⁶", "7", "⁷", "8", "⁸", "9", "⁹",
)

// Superscript replaces {{cite:n}} markers with superscript reference numbers.
func Superscript(s string) string {
	return citeMarker.ReplaceAllStringFunc(s, func(marker string) string {
		var refs []string
		for _, part := range strings.Split(citeMarker.FindStringSubmatch(marker)[1], ",") {
			if p := strings.TrimSpace(part); p != "" {
				refs = append(refs, superscriptDigits.Replace(p))
			}
		}
		return strings.Join(refs, "˒")
	})
}

// Display returns a copy with citation markers rendered as superscript.
func (a StructuredAnswer) Display() StructuredAnswer {
	out := StructuredAnswer{
		Headline: Headline{
			Paragraph: Superscript(a.Headline.Paragraph),
			Bullets:   make([]string, len(a.Headline.Bullets)),
		},
		Supporting: make([]string, len(a.Supporting)),
		Quotes:     make([]Quote, len(a.Quotes)),
	}
	for i, b := range a.Headline.Bullets {
		out.Headline.Bullets[i] = Superscript(b)
	}
	for i, b := range a.Supporting {
		out.Supporting[i] = Superscript(b)
	}
	for i, q := range a.Quotes {
		out.Quotes[i] = Quote{Text: Superscript(q.Text), Ref: q.Ref}
	}
	return out
}
