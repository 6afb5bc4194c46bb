package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/owasp/nest-search/pkg/retriever"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens measures text in model tokens. If the tokenizer cannot
// be loaded it falls back to a bytes/4 estimate, which overshoots
// rarely enough for a budget check.
func countTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// trimToBudget keeps the highest-ranked chunks whose token total fits
// the budget. At least one chunk survives so the generator always has
// some evidence.
func trimToBudget(chunks []retriever.Doc, budget int, count func(string) int) []retriever.Doc {
	if budget <= 0 || len(chunks) == 0 {
		return chunks
	}
	if count == nil {
		count = countTokens
	}
	total := 0
	kept := make([]retriever.Doc, 0, len(chunks))
	for _, ch := range chunks {
		n := count(ch.Text)
		if len(kept) > 0 && total+n > budget {
			break
		}
		total += n
		kept = append(kept, ch)
	}
	return kept
}
