package banking

import (
	"encoding/json"
	"fmt"
)

// jsonRoundTrip encodes doc once and returns a decoder into typed targets.
func jsonRoundTrip(doc Document) (func(any) error, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return func(v any) error {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return nil
	}, nil
}
