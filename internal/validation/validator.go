// Package validation classifies chat input as acceptable or rejected and
// produces sanitized copies of accepted input.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/portfolio/internal/domain"
)

const (
	DefaultMaxLength          = 1000
	DefaultMaxAssistantLength = 5000
	DefaultMaxMessages        = 50
)

// Rejection messages. They never name the rule that matched.
const (
	ErrEmpty             = "Message cannot be empty"
	ErrHarmful           = "Message contains potentially harmful content"
	ErrInvalidFormat     = "Invalid message format"
	ErrInvalidRole       = "Invalid message role"
	ErrInvalidContent    = "Message content must be a string"
	ErrAssistantTooLong  = "Assistant message is too long"
	ErrConversationEmpty = "Conversation must contain at least one message"
)

var (
	angleBrackets   = regexp.MustCompile(`[<>]`)
	protocolPrefix  = regexp.MustCompile(`(?i)(javascript|data)\s*:`)
	defaultInstance = New()
)

// Result is the outcome of a validation call.
type Result struct {
	Valid     bool   `json:"isValid"`
	Error     string `json:"error,omitempty"`
	Sanitized string `json:"sanitized,omitempty"`

	// Messages holds the sanitized conversation for ValidateConversation.
	Messages []domain.Message `json:"-"`
}

func reject(msg string) Result {
	return Result{Valid: false, Error: msg}
}

// Validator applies length limits and a replaceable list of harmful-content
// predicates. The zero value is not usable; construct with New.
type Validator struct {
	predicates         []Predicate
	maxLength          int
	maxAssistantLength int
	maxMessages        int
}

// Option configures a Validator.
type Option func(*Validator)

// WithPredicates replaces the harmful-content rule set.
func WithPredicates(p ...Predicate) Option {
	return func(v *Validator) { v.predicates = p }
}

// WithExtraPredicates appends rules to the current set.
func WithExtraPredicates(p ...Predicate) Option {
	return func(v *Validator) { v.predicates = append(v.predicates, p...) }
}

// WithMaxLength overrides the user message length cap.
func WithMaxLength(n int) Option {
	return func(v *Validator) { v.maxLength = n }
}

// WithMaxMessages overrides the conversation size cap.
func WithMaxMessages(n int) Option {
	return func(v *Validator) { v.maxMessages = n }
}

// New creates a Validator with the default limits and rules.
func New(opts ...Option) *Validator {
	v := &Validator{
		predicates:         DefaultPredicates(),
		maxLength:          DefaultMaxLength,
		maxAssistantLength: DefaultMaxAssistantLength,
		maxMessages:        DefaultMaxMessages,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Default returns the shared validator with built-in settings.
func Default() *Validator {
	return defaultInstance
}

// MaxLength returns the user message length cap.
func (v *Validator) MaxLength() int {
	return v.maxLength
}

// ClampAssistant cuts an assistant reply to the length ValidateConversation
// accepts, so stored history stays sendable.
func (v *Validator) ClampAssistant(s string) string {
	return truncate(s, v.maxAssistantLength)
}

// Validate checks a single user-authored message.
func (v *Validator) Validate(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return reject(ErrEmpty)
	}
	if utf8.RuneCountInString(raw) > v.maxLength {
		return reject(fmt.Sprintf("Message is too long (maximum %d characters)", v.maxLength))
	}
	for _, match := range v.predicates {
		if match(raw) {
			return reject(ErrHarmful)
		}
	}
	return Result{Valid: true, Sanitized: v.sanitize(trimmed)}
}

func (v *Validator) sanitize(s string) string {
	s = angleBrackets.ReplaceAllString(s, "")
	s = protocolPrefix.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return truncate(s, v.maxLength)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// ValidateConversation applies structural checks to a conversation. User
// entries get the full single-message validation and are replaced by their
// sanitized form in Result.Messages; assistant entries only get a length check.
func (v *Validator) ValidateConversation(messages []domain.Message) Result {
	if messages == nil {
		return reject(ErrInvalidFormat)
	}
	if len(messages) == 0 {
		return reject(ErrConversationEmpty)
	}
	if len(messages) > v.maxMessages {
		return reject(fmt.Sprintf("Too many messages in conversation (maximum %d)", v.maxMessages))
	}

	clean := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleUser:
			res := v.Validate(m.Content)
			if !res.Valid {
				return res
			}
			clean = append(clean, domain.Message{Role: m.Role, Content: res.Sanitized, Timestamp: m.Timestamp})
		case domain.RoleAssistant:
			if utf8.RuneCountInString(m.Content) > v.maxAssistantLength {
				return reject(ErrAssistantTooLong)
			}
			clean = append(clean, m)
		default:
			return reject(ErrInvalidRole)
		}
	}
	return Result{Valid: true, Messages: clean}
}

type rawMessage struct {
	Role    json.RawMessage `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ValidateRawConversation validates an undecoded messages value, rejecting
// non-array input and entries whose role or content is not a JSON string.
func (v *Validator) ValidateRawConversation(raw json.RawMessage) Result {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return reject(ErrInvalidFormat)
	}
	if len(items) > v.maxMessages {
		return reject(fmt.Sprintf("Too many messages in conversation (maximum %d)", v.maxMessages))
	}

	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		var rm rawMessage
		if err := json.Unmarshal(item, &rm); err != nil {
			return reject(ErrInvalidFormat)
		}
		role, ok := decodeString(rm.Role)
		if !ok {
			return reject(ErrInvalidRole)
		}
		content, ok := decodeString(rm.Content)
		if !ok {
			return reject(ErrInvalidContent)
		}
		messages = append(messages, domain.Message{Role: domain.Role(role), Content: content})
	}
	return v.ValidateConversation(messages)
}

// decodeString accepts only JSON strings; null, numbers and objects fail.
func decodeString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

// Validate checks raw with the default validator.
func Validate(raw string) Result {
	return defaultInstance.Validate(raw)
}

// ValidateConversation checks messages with the default validator.
func ValidateConversation(messages []domain.Message) Result {
	return defaultInstance.ValidateConversation(messages)
}
