package formatting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{
			name:     "simple object",
			input:    map[string]interface{}{"name": "test", "value": 42},
			expected: "{\n  \"name\": \"test\",\n  \"value\": 42\n}",
		},
		{
			name:     "array",
			input:    []string{"a", "b"},
			expected: "[\n  \"a\",\n  \"b\"\n]",
		},
		{
			name:     "nil",
			input:    nil,
			expected: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PrettyJSON(tt.input))
		})
	}
}

func TestPrettyJSONWithInvalidData(t *testing.T) {
	// A channel cannot be marshaled; the fallback is fmt's representation.
	result := PrettyJSON(make(chan int))
	assert.NotEmpty(t, result)
	assert.NotEqual(t, "null", result)
}

func TestSince(t *testing.T) {
	ref := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := ref.Add(-d)
		return &ts
	}

	assert.Equal(t, "-", since(nil, ref))
	assert.Equal(t, "30s", since(at(30*time.Second), ref))
	assert.Equal(t, "5m", since(at(5*time.Minute), ref))
	assert.Equal(t, "3h", since(at(3*time.Hour), ref))
	assert.Equal(t, "4d", since(at(96*time.Hour), ref))
}
