package mock

import (
	"fmt"
	"reflect"
	"time"
)

// ToolHandler handles mock tool calls with configurable responses
type ToolHandler struct {
	server string
	config ToolConfig
}

// NewToolHandler creates a new mock tool handler
func NewToolHandler(server string, config ToolConfig) *ToolHandler {
	return &ToolHandler{server: server, config: config}
}

// HandleCall picks the first response whose condition matches args.
// isError is true when the selected response is an error response.
func (h *ToolHandler) HandleCall(args map[string]interface{}) (text string, isError bool) {
	if len(h.config.Responses) == 0 {
		return fmt.Sprintf("%s:%s", h.server, h.config.Name), false
	}

	selected := &h.config.Responses[0]
	for i := range h.config.Responses {
		if matchesCondition(h.config.Responses[i].Condition, args) {
			selected = &h.config.Responses[i]
			break
		}
	}

	if selected.Delay != "" {
		if d, err := time.ParseDuration(selected.Delay); err == nil {
			time.Sleep(d)
		}
	}

	if selected.Error != "" {
		return selected.Error, true
	}
	return selected.Response, false
}

// matchesCondition checks if the given args match the response condition
func matchesCondition(condition map[string]interface{}, args map[string]interface{}) bool {
	if len(condition) == 0 {
		return true
	}
	for key, expected := range condition {
		actual, exists := args[key]
		if !exists || !valuesEqual(expected, actual) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values for equality, handling type conversions
func valuesEqual(expected, actual interface{}) bool {
	if reflect.DeepEqual(expected, actual) {
		return true
	}
	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}
