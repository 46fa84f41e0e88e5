package json

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
)

func TestJsonlShortcuts(t *testing.T) {
	assert.Equal(t, "{\"foo\":1,\"bar\":2}\n",
		string(AppendJsonlItem([]byte("{\"foo\":1}\n"), "bar", 2)))

	assert.Equal(t, "{\"foo\":1,\"bar\":{\"F\":1,\"B\":2}}\n",
		string(AppendJsonlItem([]byte("{\"foo\":1}\n"), "bar",
			ordereddict.NewDict().Set("F", 1).Set("B", 2))))

	// Annotations stack - each new field lands before the closing
	// brace of the previous result.
	annotated := AppendJsonlItem([]byte("{\"foo\":1}\n"), "_ts", 1715000000)
	annotated = AppendJsonlItem(annotated, "_suffix", 42)
	assert.Equal(t,
		"{\"foo\":1,\"_ts\":1715000000,\"_suffix\":42}\n",
		string(annotated))

	// Handle malformed JSON
	assert.Equal(t, "",
		string(AppendJsonlItem([]byte(""), "bar", 2)))
	assert.Equal(t, "}",
		string(AppendJsonlItem([]byte("}"), "bar", 2)))
	assert.Equal(t, ",\"bar\":2}\n",
		string(AppendJsonlItem([]byte("}\n"), "bar", 2)))
}
