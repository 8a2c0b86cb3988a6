package kafka

import (
	"encoding/json"
	"fmt"
)

// DecodeJSON is a generic helper that unmarshals a message body into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding message body: %w", err)
	}
	return result, nil
}
