package llm

// Message represents a chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call. Model overrides the provider's
// configured model when set. Parameters carries sampling options such as
// temperature or top_p and is passed through to the backend as-is.
type Request struct {
	Model      string
	Messages   []Message
	Parameters map[string]any
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Delta represents an incremental update during streaming. The last delta
// on a channel has Done set and carries Usage when the backend reports it.
// A delta with Err set ends the stream.
type Delta struct {
	Content string
	Done    bool
	Usage   *Usage
	Err     error
}
