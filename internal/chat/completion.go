package chat

// CompletionRequest is the completion service request body.
type CompletionRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"sessionId"`
	UserContext string `json:"userContext"`
}

// UserPayload is the stored shape of a user row.
type UserPayload struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}
