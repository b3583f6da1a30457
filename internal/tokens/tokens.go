// Package tokens counts model tokens for persisted chat messages.
package tokens

import "github.com/tiktoken-go/tokenizer"

// Counter counts tokens with a tiktoken codec, falling back to a
// character based estimate (4 chars per token) when no codec is available.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter for the GPT-4 family encoding, which is also
// used as an approximation for non OpenAI models.
func NewCounter() *Counter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.codec == nil {
		return estimate(text)
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return estimate(text)
	}
	return n
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}
