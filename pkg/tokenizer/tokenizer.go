package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// CountTokens estimates the token count of English text at 4/3 tokens per
// word, rounded to the nearest token. Text with any word counts at least 1.
func CountTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max((words*4+1)/3, 1)
}

// CountTokensForModel estimates tokens for a model family. Claude and GPT
// tokenizers run close to four characters per token on dense prose, which
// counts tables and figures better than the word heuristic.
func CountTokensForModel(text, model string) int {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt") || strings.HasPrefix(m, "claude") {
		return max(utf8.RuneCountInString(text)/4, CountTokens(text))
	}
	return CountTokens(text)
}
