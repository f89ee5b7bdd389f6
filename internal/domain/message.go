// Package domain defines the chat types shared by the gateway and the widget.
package domain

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation entry. Timestamp is epoch millis and is
// omitted on the wire when unset.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SessionHeader carries the widget's conversation id so the gateway can
// correlate requests in its logs.
const SessionHeader = "X-Chat-Session"

// ChatRequest is the body accepted by POST /api/chat.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}
