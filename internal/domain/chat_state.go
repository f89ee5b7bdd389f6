package domain

import "strings"

// ChatState is the persisted widget record.
type ChatState struct {
	Messages       []Message `json:"messages"`
	IsOpen         bool      `json:"isOpen"`
	LastActiveTime int64     `json:"lastActiveTime"`
}

// IsEmptyAssistant reports whether m is an assistant message with no visible content.
func IsEmptyAssistant(m Message) bool {
	return m.Role == RoleAssistant && strings.TrimSpace(m.Content) == ""
}
