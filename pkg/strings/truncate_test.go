package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string unchanged", input: "hello", maxLen: 10, want: "hello"},
		{name: "exact length unchanged", input: "hello", maxLen: 5, want: "hello"},
		{name: "long string truncated", input: "failed to connect to upstream", maxLen: 15, want: "failed to co..."},
		{name: "newlines flattened", input: "line one\n\tline two", maxLen: 60, want: "line one line two"},
		{name: "unicode kept whole", input: "äöüäöüäöü", maxLen: 7, want: "äöüä..."},
		{name: "tiny max is clamped", input: "abcdefgh", maxLen: 1, want: "a..."},
		{name: "empty", input: "", maxLen: 10, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.input, tt.maxLen))
		})
	}
}
