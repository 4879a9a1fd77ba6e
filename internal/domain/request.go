package domain

// CreateChatRequest is the body of POST /chats.
type CreateChatRequest struct {
	Title string `json:"title" validate:"max=200"`
}

// CreateMessageRequest is the body of POST /chats/:chat_id/messages.
// Message ids are assigned by the client.
type CreateMessageRequest struct {
	Message
}

// SelectModelRequest is the body of PUT /models/selected.
type SelectModelRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required"`
}

// BootstrapResponse is the initial state a client loads at startup.
type BootstrapResponse struct {
	Models        []ModelConfig `json:"models"`
	Chats         []ChatSession `json:"chats"`
	SelectedModel string        `json:"selected_model,omitempty"`
	CurrentChatID string        `json:"current_chat_id,omitempty"`
}

// ProxyCompletionRequest is the body of POST /llm/chat/completions.
type ProxyCompletionRequest struct {
	Model       ModelConfig      `json:"model" validate:"required"`
	Messages    []ContextMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64         `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int             `json:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=200000"`
}

// ErrorResponse is the JSON error body returned by the backend.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatsResponse is the body of GET /chats.
type ChatsResponse struct {
	Chats []ChatSession `json:"chats"`
}

// MessagesResponse is the body of GET /chats/:chat_id/messages.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// ModelsResponse is the body of GET /models.
type ModelsResponse struct {
	Models        []ModelConfig `json:"models"`
	SelectedModel string        `json:"selected_model,omitempty"`
}

// ModelPatch is the body of PATCH /models/:id. Nil fields are left unchanged.
type ModelPatch struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,min=1,max=128"`
	BaseURL         *string  `json:"base_url,omitempty"`
	APIKey          *string  `json:"api_key,omitempty"`
	ModelID         *string  `json:"model_id,omitempty"`
	CompletionsPath *string  `json:"completions_path,omitempty"`
	Headers         *string  `json:"headers,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens       *int     `json:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=200000"`
}

// Apply copies the set fields of p onto m.
func (p ModelPatch) Apply(m *ModelConfig) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.BaseURL != nil {
		m.BaseURL = *p.BaseURL
	}
	if p.APIKey != nil {
		m.APIKey = *p.APIKey
	}
	if p.ModelID != nil {
		m.ModelID = *p.ModelID
	}
	if p.CompletionsPath != nil {
		m.CompletionsPath = *p.CompletionsPath
	}
	if p.Headers != nil {
		m.Headers = *p.Headers
	}
	if p.Temperature != nil {
		t := *p.Temperature
		m.Temperature = &t
	}
	if p.MaxTokens != nil {
		n := *p.MaxTokens
		m.MaxTokens = &n
	}
}
