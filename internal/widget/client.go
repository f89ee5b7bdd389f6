package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/google/uuid"
)

// Gateway streams an assistant reply for a conversation.
type Gateway interface {
	Stream(ctx context.Context, messages []domain.Message) iter.Seq2[string, error]
}

// Client calls the chat gateway over HTTP.
type Client struct {
	endpoint  string
	http      *http.Client
	sessionID string
}

// NewClient creates a client for the gateway at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:  strings.TrimSuffix(baseURL, "/") + "/api/chat",
		http:      httpClient,
		sessionID: uuid.NewString(),
	}
}

// SessionID returns the id sent with every request from this client.
func (c *Client) SessionID() string {
	return c.sessionID
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Stream posts the conversation and yields the reply text as it arrives.
// Chunks never split a UTF-8 sequence.
func (c *Client) Stream(ctx context.Context, messages []domain.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		payload, err := json.Marshal(domain.ChatRequest{Messages: messages})
		if err != nil {
			yield("", fmt.Errorf("encode chat request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			yield("", fmt.Errorf("build chat request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(domain.SessionHeader, c.sessionID)

		resp, err := c.http.Do(req)
		if err != nil {
			yield("", fmt.Errorf("send chat request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", decodeError(resp))
			return
		}

		buf := make([]byte, 4096)
		var pending []byte
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				cut := completePrefix(pending)
				if cut > 0 {
					chunk := string(pending[:cut])
					pending = append(pending[:0], pending[cut:]...)
					if !yield(chunk, nil) {
						return
					}
				}
			}
			if errors.Is(readErr, io.EOF) {
				if len(pending) > 0 {
					yield(string(pending), nil)
				}
				return
			}
			if readErr != nil {
				yield("", fmt.Errorf("read chat stream: %w", readErr))
				return
			}
		}
	}
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

func decodeError(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: body.RetryAfter, Message: body.Message}
	case http.StatusBadRequest:
		return &RejectedError{Reason: body.Error}
	default:
		return &ServerError{Status: resp.StatusCode, Message: body.Error}
	}
}
