// Package widget drives a chat conversation from the client side: local
// validation, optimistic persistence, and incremental consumption of the
// gateway's streamed reply.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/prompt"
	"github.com/ashureev/portfolio/internal/session"
	"github.com/ashureev/portfolio/internal/validation"
)

// Local assistant messages shown in place of a streamed reply.
const (
	ReplyUnavailable = "Sorry, I couldn't reach the assistant just now. Please try again in a moment."
	rejectedFormat   = "I can't process that message: %s. Please rephrase your question."
	rateLimitFormat  = "You're sending messages a little too quickly. Please wait %d seconds and try again."
)

// Reply is the outcome of a submission.
type Reply struct {
	// Message is the single assistant message appended to the conversation.
	Message domain.Message
	// Suggestions are follow-up questions parsed from the reply footer.
	Suggestions []string
	// Local is true when Message was synthesized without a model reply.
	Local bool
}

// Controller wires validation, the session store and the gateway together.
type Controller struct {
	store     *session.Store
	gateway   Gateway
	validator *validation.Validator
	logger    *slog.Logger
	busy      atomic.Bool
}

// NewController creates a Controller. A nil validator uses the default rules.
func NewController(store *session.Store, gateway Gateway, validator *validation.Validator, logger *slog.Logger) *Controller {
	if validator == nil {
		validator = validation.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, gateway: gateway, validator: validator, logger: logger}
}

// Mount loads the persisted conversation and removes empty replies left by
// an interrupted session.
func (c *Controller) Mount(ctx context.Context) domain.ChatState {
	c.store.Load(ctx)
	if _, err := c.store.CleanDuplicates(ctx); err != nil {
		c.logger.Warn("Failed to clean chat history", "error", err)
	}
	return c.store.State()
}

// Submit validates text, appends it optimistically, streams the reply through
// onChunk, and appends exactly one assistant message once the stream ends.
// Rejections and failures still append a local assistant message and return
// a typed error (*RejectedError, *RateLimitedError, *ServerError) alongside it.
func (c *Controller) Submit(ctx context.Context, text string, onChunk func(string)) (Reply, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Reply{}, ErrBusy
	}
	defer c.busy.Store(false)

	res := c.validator.Validate(text)
	if !res.Valid {
		rejErr := &RejectedError{Reason: res.Error}
		reply, err := c.local(ctx, fmt.Sprintf(rejectedFormat, strings.TrimSuffix(res.Error, ".")))
		return reply, errors.Join(rejErr, err)
	}

	if _, err := c.store.AddMessage(ctx, domain.Message{Role: domain.RoleUser, Content: strings.TrimSpace(text)}); err != nil {
		c.logger.Warn("Failed to persist user message", "error", err)
	}

	var b strings.Builder
	var streamErr error
	for chunk, err := range c.gateway.Stream(ctx, c.store.Messages()) {
		if err != nil {
			streamErr = err
			break
		}
		b.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	if b.Len() == 0 {
		if streamErr == nil {
			streamErr = &ServerError{Status: 200, Message: "empty reply"}
		}
		reply, err := c.local(ctx, failureMessage(streamErr))
		return reply, errors.Join(streamErr, err)
	}
	if streamErr != nil {
		c.logger.Warn("Reply stream ended early", "error", streamErr)
	}

	body, suggestions := prompt.SplitSuggestions(b.String())
	if body == "" {
		body = b.String()
	}
	body = c.validator.ClampAssistant(body)
	msg, err := c.store.AddMessage(ctx, domain.Message{Role: domain.RoleAssistant, Content: body})
	if err != nil {
		c.logger.Warn("Failed to persist assistant message", "error", err)
	}
	return Reply{Message: msg, Suggestions: suggestions}, nil
}

func failureMessage(err error) string {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Sprintf(rateLimitFormat, rl.RetryAfter)
	}
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Reason != "" {
		return fmt.Sprintf(rejectedFormat, strings.TrimSuffix(rej.Reason, "."))
	}
	return ReplyUnavailable
}

// local appends a synthesized assistant message. A persistence failure is
// returned but the message is still reported.
func (c *Controller) local(ctx context.Context, text string) (Reply, error) {
	msg, err := c.store.AddMessage(ctx, domain.Message{Role: domain.RoleAssistant, Content: text})
	if err != nil {
		err = fmt.Errorf("persist local reply: %w", err)
	}
	return Reply{Message: msg, Local: true}, err
}

// Toggle flips the open flag and persists it.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	open := c.store.ToggleOpen()
	return open, c.store.Persist(ctx)
}

// Clear discards the conversation.
func (c *Controller) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Messages returns the current conversation.
func (c *Controller) Messages() []domain.Message {
	return c.store.Messages()
}
