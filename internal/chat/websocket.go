package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/portfolio/internal/observability"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsReadTimeout bounds how long a client may take to send its request frame.
const wsReadTimeout = 30 * time.Second

// wsDone is the final frame of a successful websocket relay.
type wsDone struct {
	Done bool `json:"done"`
}

// wsError is sent in place of an HTTP error status.
type wsError struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// HandleWebSocket handles GET /api/chat/ws. The client sends one
// {"messages": [...]} text frame; reply chunks arrive as binary frames and
// the relay ends with a {"done": true} text frame. Errors are text frames too.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := h.identify(r)
	decision := h.limiter.Check(key)
	setRateLimitHeaders(w, decision)
	meta := h.meta(r, key, "ws")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.allowedOrigins),
	})
	if err != nil {
		h.logger.Warn("WebSocket accept failed", "error", err, "request_id", meta.requestID)
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(h.maxBodyBytes)

	ctx := r.Context()

	if !decision.Allowed {
		retryAfter := decision.RetryAfter(h.limiter.Now())
		h.metrics.Request(meta.transport, observability.OutcomeRateLimited)
		body := rateLimitedBody(retryAfter)
		h.closeWithError(ctx, conn, wsError{Error: body.Error, Message: body.Message, RetryAfter: body.RetryAfter})
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, wsReadTimeout)
	var body chatBody
	err = wsjson.Read(readCtx, conn, &body)
	cancel()
	if err != nil {
		h.metrics.Request(meta.transport, observability.OutcomeInvalid)
		if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
			return
		}
		h.closeWithError(ctx, conn, wsError{Error: "Invalid request body"})
		return
	}

	res := h.validator.ValidateRawConversation(body.Messages)
	if !res.Valid {
		h.metrics.Request(meta.transport, observability.OutcomeInvalid)
		h.closeWithError(ctx, conn, wsError{Error: res.Error})
		return
	}

	conversation := h.withSystemPrompt(ctx, res.Messages)
	result := h.relay(ctx, meta, conversation, func(chunk string) error {
		return conn.Write(ctx, websocket.MessageBinary, []byte(chunk))
	})
	if result.outcome == observability.OutcomePartial && ctx.Err() != nil {
		return
	}

	if err := wsjson.Write(ctx, conn, wsDone{Done: true}); err != nil {
		h.logger.Debug("Failed to send done frame", "error", err)
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) closeWithError(ctx context.Context, conn *websocket.Conn, e wsError) {
	if err := wsjson.Write(ctx, conn, e); err != nil {
		h.logger.Debug("Failed to send error frame", "error", err)
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// originPatterns converts configured origins into host patterns.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}
