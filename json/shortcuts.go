package json

import (
	"fmt"
)

// AppendJsonlItem adds one more field to each object in a valid
// JSONL buffer without parsing and re-encoding it. Lines that do not
// end in an object are passed through unchanged.
func AppendJsonlItem(jsonl []byte, name string, value interface{}) []byte {
	serialized, err := Marshal(value)
	if err != nil {
		return jsonl
	}
	extra := []byte(fmt.Sprintf(",%q:%s", name, serialized))

	result := make([]byte, 0, len(jsonl)+len(extra))
	for i := 0; i < len(jsonl); i++ {
		if jsonl[i] == '}' && i+1 < len(jsonl) && jsonl[i+1] == '\n' {
			result = append(result, extra...)
		}
		result = append(result, jsonl[i])
	}

	return result
}
