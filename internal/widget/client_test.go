package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, c *Client, msgs []domain.Message) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range c.Stream(context.Background(), msgs) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestClientStreamsReply(t *testing.T) {
	t.Parallel()
	var gotSession string
	var gotReq domain.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotSession = r.Header.Get(domain.SessionHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		f := w.(http.Flusher)
		for _, part := range []string{"Hello ", "from ", "the gateway"} {
			_, _ = w.Write([]byte(part))
			f.Flush()
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	chunks, err := collect(t, c, []domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, "Hello from the gateway", strings.Join(chunks, ""))
	assert.Equal(t, c.SessionID(), gotSession)
	_, err = uuid.Parse(gotSession)
	assert.NoError(t, err)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "hi", gotReq.Messages[0].Content)
}

func TestClientNeverSplitsRunes(t *testing.T) {
	t.Parallel()
	text := "héllo wörld ✓"
	raw := []byte(text)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f := w.(http.Flusher)
		// One byte per flush puts every multi-byte rune across a boundary.
		for i := range raw {
			_, _ = w.Write(raw[i : i+1])
			f.Flush()
		}
	}))
	defer srv.Close()

	chunks, err := collect(t, NewClient(srv.URL, srv.Client()), nil)
	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %q is not valid UTF-8", chunk)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestClientMapsErrorResponses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later.","retryAfter":37}`,
			check: func(t *testing.T, err error) {
				var rl *RateLimitedError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 37, rl.RetryAfter)
				assert.Equal(t, "Too many requests. Please try again later.", rl.Message)
			},
		},
		{
			name:   "rejected",
			status: http.StatusBadRequest,
			body:   `{"error":"Message contains potentially harmful content"}`,
			check: func(t *testing.T, err error) {
				var rej *RejectedError
				require.ErrorAs(t, err, &rej)
				assert.Equal(t, "Message contains potentially harmful content", rej.Reason)
			},
		},
		{
			name:   "server error without body",
			status: http.StatusBadGateway,
			body:   "",
			check: func(t *testing.T, err error) {
				var se *ServerError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusBadGateway, se.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			chunks, err := collect(t, NewClient(srv.URL, srv.Client()), nil)
			assert.Empty(t, chunks)
			tt.check(t, err)
		})
	}
}

func TestCompletePrefix(t *testing.T) {
	t.Parallel()
	check := []byte("✓") // 3 bytes
	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{"empty", nil, 0},
		{"ascii", []byte("abc"), 3},
		{"complete rune", append([]byte("a"), check...), 4},
		{"one byte of three", append([]byte("a"), check[0]), 1},
		{"two bytes of three", append([]byte("a"), check[:2]...), 1},
		{"only partial", check[:2], 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, completePrefix(tt.in))
		})
	}
}
