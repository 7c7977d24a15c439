// Package tokenizer counts model tokens for chunk accounting.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in text using the target embedding model's
// tokenizer. Counts are recorded on chunk rows for accounting; chunk
// boundaries are decided by word count, not by these counts.
type Counter interface {
	CountTokens(text string) (int, error)
}

// TiktokenCounter counts tokens with the BPE encoding of a specific model.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves the encoding for the given model, falling
// back to cl100k_base for models tiktoken does not know about.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer encoding: %w", err)
		}
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

// CountTokens returns the number of tokens in text.
func (c *TiktokenCounter) CountTokens(text string) (int, error) {
	return len(c.encoding.Encode(text, nil, nil)), nil
}
