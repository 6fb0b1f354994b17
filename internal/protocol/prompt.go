package protocol

// TextFormat asks the model for a particular output shape, e.g.
// {"type":"json_schema", ...}. Opaque to the engine; forwarded verbatim.
type TextFormat map[string]interface{}

// Prompt is the outbound payload the streaming response client sends for
// one turn.
type Prompt struct {
	Input        []ResponseItem    `json:"input"`
	Tools        []Tool            `json:"tools,omitempty"`
	Store        bool              `json:"store"`
	Model        string            `json:"model,omitempty"`
	ModelFamily  string            `json:"model_family,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	TextFormat   TextFormat        `json:"text_format,omitempty"`
}
