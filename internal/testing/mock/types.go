package mock

// HTTPTransportType represents the type of HTTP transport for mock servers
type HTTPTransportType string

const (
	// HTTPTransportStreamableHTTP uses streamable HTTP protocol
	HTTPTransportStreamableHTTP HTTPTransportType = "streamable-http"
	// HTTPTransportSSE uses Server-Sent Events protocol
	HTTPTransportSSE HTTPTransportType = "sse"
)

// ServerConfig describes a mock upstream MCP server.
type ServerConfig struct {
	Name      string           `yaml:"name"`
	Tools     []ToolConfig     `yaml:"tools"`
	Prompts   []PromptConfig   `yaml:"prompts"`
	Resources []ResourceConfig `yaml:"resources"`
	Templates []TemplateConfig `yaml:"templates"`
}

// ToolConfig defines configuration for a mock tool
type ToolConfig struct {
	// Name is the unique identifier for the tool
	Name string `yaml:"name"`
	// Description describes what the tool does
	Description string `yaml:"description"`
	// Responses defines possible responses for this tool. Without any, the
	// tool answers "<server>:<tool>".
	Responses []ToolResponse `yaml:"responses"`
}

// ToolResponse defines a conditional response for a mock tool
type ToolResponse struct {
	// Condition defines parameter matching for this response (optional)
	// If empty, this response is used as a fallback
	Condition map[string]interface{} `yaml:"condition,omitempty"`
	// Response is the text returned by the tool
	Response string `yaml:"response,omitempty"`
	// Error is returned as a tool error result instead of Response
	Error string `yaml:"error,omitempty"`
	// Delay simulates response latency (e.g., "2s", "500ms")
	Delay string `yaml:"delay,omitempty"`
}

// PromptConfig defines a mock prompt answering with a single user message.
type PromptConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Text        string `yaml:"text"`
}

// ResourceConfig defines a static text resource.
type ResourceConfig struct {
	URI  string `yaml:"uri"`
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

// TemplateConfig defines a resource template. Reads answer with the
// requested URI as text.
type TemplateConfig struct {
	URITemplate string `yaml:"uriTemplate"`
	Name        string `yaml:"name"`
}
