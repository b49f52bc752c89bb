// Package tokenizer provides client-side token counting for prompt text.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName is the BPE encoding used for counting. cl100k_base covers the
// GPT-4 family and is close enough for sizing fragments against any model.
const encodingName = "cl100k_base"

// Tokenizer counts tokens with a tiktoken encoding. A nil *Tokenizer is
// valid and falls back to a bytes/4 approximation, so callers can degrade
// gracefully when the encoding cannot be initialized.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New initializes the tokenizer. Initialization can fail when the encoding
// data is unavailable; callers should fall back to a nil Tokenizer.
func New() (*Tokenizer, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %s: %w", encodingName, err)
	}
	return &Tokenizer{encoding: encoding}, nil
}

// CountTokens returns the token count of text.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.encoding == nil {
		return approximate(text)
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// approximate estimates tokens as one per four bytes, the usual rule of
// thumb when no encoding is available.
func approximate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
