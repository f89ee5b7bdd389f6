// Package chat implements the chat completion gateway: admission, validation,
// prompt assembly and streaming relay of upstream model output.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/portfolio/internal/api"
	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/identity"
	"github.com/ashureev/portfolio/internal/llm"
	"github.com/ashureev/portfolio/internal/observability"
	"github.com/ashureev/portfolio/internal/profile"
	"github.com/ashureev/portfolio/internal/prompt"
	"github.com/ashureev/portfolio/internal/ratelimit"
	"github.com/ashureev/portfolio/internal/validation"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// FallbackMessage is sent when the upstream fails before any text was relayed.
const FallbackMessage = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// isoMillis matches the ISO-8601 form browsers produce for Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Deps are the collaborators of a Handler.
type Deps struct {
	Limiter         *ratelimit.Limiter
	Validator       *validation.Validator
	Profiles        profile.Source
	Provider        llm.Provider
	Metrics         *observability.Metrics
	ConversationLog ConversationLogger
	Logger          *slog.Logger
	MaxBodyBytes    int64
	// AllowedOrigins are websocket origin patterns; empty allows any origin.
	AllowedOrigins []string
	// Identify derives the rate-limit key; defaults to identity.ClientIdentity.
	Identify func(*http.Request) string
}

// Handler serves the chat endpoints.
type Handler struct {
	limiter        *ratelimit.Limiter
	validator      *validation.Validator
	profiles       profile.Source
	provider       llm.Provider
	metrics        *observability.Metrics
	log            ConversationLogger
	logger         *slog.Logger
	maxBodyBytes   int64
	allowedOrigins []string
	identify       func(*http.Request) string
}

// NewHandler creates a Handler. Limiter, Provider and Profiles are required.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		limiter:        d.Limiter,
		validator:      d.Validator,
		profiles:       d.Profiles,
		provider:       d.Provider,
		metrics:        d.Metrics,
		log:            d.ConversationLog,
		logger:         d.Logger,
		maxBodyBytes:   d.MaxBodyBytes,
		allowedOrigins: d.AllowedOrigins,
		identify:       d.Identify,
	}
	if h.validator == nil {
		h.validator = validation.Default()
	}
	if h.log == nil {
		h.log = noopConversationLogger{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = defaultMaxRequestBodySize
	}
	if h.identify == nil {
		h.identify = identity.ClientIdentity
	}
	if len(h.allowedOrigins) == 0 {
		h.allowedOrigins = []string{"*"}
	}
	return h
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", h.HandleChat)
		r.Get("/ws", h.HandleWebSocket)
	})
}

type chatBody struct {
	Messages json.RawMessage `json:"messages"`
}

// requestMeta identifies one chat request in logs.
type requestMeta struct {
	requestID string
	sessionID string
	client    string
	transport string
}

func (h *Handler) meta(r *http.Request, key, transport string) requestMeta {
	sessionID := ""
	if id, err := uuid.Parse(r.Header.Get(domain.SessionHeader)); err == nil {
		sessionID = id.String()
	}
	return requestMeta{
		requestID: chiMiddleware.GetReqID(r.Context()),
		sessionID: sessionID,
		client:    hashClient(key),
		transport: transport,
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", d.ResetTime.UTC().Format(isoMillis))
}

func rateLimitedBody(retryAfter int) api.RateLimitedBody {
	return api.RateLimitedBody{
		Error:      "Rate limit exceeded",
		Message:    fmt.Sprintf("Too many requests. Please try again in %d seconds.", retryAfter),
		RetryAfter: retryAfter,
	}
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	key := h.identify(r)
	decision := h.limiter.Check(key)
	setRateLimitHeaders(w, decision)
	meta := h.meta(r, key, "http")

	if !decision.Allowed {
		retryAfter := decision.RetryAfter(h.limiter.Now())
		h.logger.Info("Chat request rate limited", "client", meta.client, "request_id", meta.requestID, "retry_after", retryAfter)
		h.metrics.Request(meta.transport, observability.OutcomeRateLimited)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		api.JSON(w, http.StatusTooManyRequests, rateLimitedBody(retryAfter))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var body chatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.metrics.Request(meta.transport, observability.OutcomeInvalid)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res := h.validator.ValidateRawConversation(body.Messages)
	if !res.Valid {
		h.logger.Info("Chat request rejected", "client", meta.client, "request_id", meta.requestID, "reason", res.Error)
		h.metrics.Request(meta.transport, observability.OutcomeInvalid)
		api.Error(w, http.StatusBadRequest, res.Error)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("Response writer does not support streaming")
		h.metrics.Request(meta.transport, observability.OutcomeError)
		api.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	conversation := h.withSystemPrompt(r.Context(), res.Messages)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.relay(r.Context(), meta, conversation, func(chunk string) error {
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

// withSystemPrompt prepends the system message built from the current
// profile, falling back to the built-in stub when the profile is unavailable.
func (h *Handler) withSystemPrompt(ctx context.Context, messages []domain.Message) []domain.Message {
	p, err := h.profiles.Profile(ctx)
	if err != nil {
		h.logger.Warn("Failed to load profile, using fallback", "error", err)
		p = profile.Fallback()
	}
	out := make([]domain.Message, 0, len(messages)+1)
	out = append(out, domain.Message{Role: domain.RoleSystem, Content: prompt.Build(p)})
	return append(out, messages...)
}

// relayResult summarizes a finished relay.
type relayResult struct {
	text    string
	chunks  int
	outcome string
}

// relay streams upstream chunks to emit in arrival order. An upstream error
// before any chunk was emitted sends FallbackMessage instead; after that the
// stream simply ends.
func (h *Handler) relay(ctx context.Context, meta requestMeta, conversation []domain.Message, emit func(string) error) relayResult {
	last := conversation[len(conversation)-1]
	h.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: meta.requestID,
		SessionID: meta.sessionID,
		Client:    meta.client,
		Transport: meta.transport,
		EventType: "chat_user_message",
		Content:   last.Content,
		Meta:      map[string]any{"messages": len(conversation) - 1},
	})

	finish := h.metrics.StreamStarted()
	start := time.Now()
	var text []byte
	res := relayResult{outcome: observability.OutcomeSuccess}

	for chunk, err := range h.provider.Stream(ctx, conversation) {
		if err != nil {
			h.logger.Error("Upstream stream failed",
				"error", err,
				"request_id", meta.requestID,
				"chunks_sent", res.chunks,
			)
			if res.chunks == 0 {
				res.outcome = observability.OutcomeUpstream
				if emitErr := emit(FallbackMessage); emitErr != nil {
					h.logger.Debug("Failed to send fallback message", "error", emitErr)
				}
			} else {
				res.outcome = observability.OutcomePartial
			}
			break
		}
		if res.chunks == 0 {
			h.metrics.FirstChunk(time.Since(start))
		}
		if err := emit(chunk); err != nil {
			h.logger.Info("Client went away mid-stream", "request_id", meta.requestID, "error", err)
			res.outcome = observability.OutcomePartial
			break
		}
		res.chunks++
		text = append(text, chunk...)
		h.metrics.Chunk()
	}

	res.text = string(text)
	finish(res.outcome)
	h.metrics.Request(meta.transport, res.outcome)
	h.logger.Info("Chat stream completed",
		"request_id", meta.requestID,
		"client", meta.client,
		"transport", meta.transport,
		"chunks", res.chunks,
		"outcome", res.outcome,
		"duration", time.Since(start),
	)
	h.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: meta.requestID,
		SessionID: meta.sessionID,
		Client:    meta.client,
		Transport: meta.transport,
		EventType: "chat_assistant_message",
		Content:   res.text,
		Meta: map[string]any{
			"chunks":  res.chunks,
			"outcome": res.outcome,
			"model":   h.provider.Model(),
		},
	})
	return res
}
