package chat

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ConversationLogEvent is one NDJSON line in the conversation log.
type ConversationLogEvent struct {
	Timestamp string         `json:"ts"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Client    string         `json:"client"`
	Transport string         `json:"transport"`
	EventType string         `json:"event_type"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat traffic off the request path.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogConfig controls the NDJSON conversation log.
type ConversationLogConfig struct {
	Enabled   bool
	Path      string
	QueueSize int
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

type fileConversationLogger struct {
	queue  chan ConversationLogEvent
	file   *os.File
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewConversationLogger returns a logger that appends events to cfg.Path from
// a single background writer. Events are dropped when the queue is full.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create conversation log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}

	l := &fileConversationLogger{
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		file:   f,
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event", "event_type", event.EventType)
	}
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	w := bufio.NewWriter(l.file)
	enc := json.NewEncoder(w)
	for event := range l.queue {
		if err := enc.Encode(event); err != nil {
			l.logger.Warn("Failed to encode conversation log event", "error", err)
			continue
		}
		if len(l.queue) == 0 {
			if err := w.Flush(); err != nil {
				l.logger.Warn("Failed to flush conversation log", "error", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		l.logger.Warn("Failed to flush conversation log", "error", err)
	}
}

func (l *fileConversationLogger) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
		err = l.file.Close()
	})
	return err
}

// hashClient keeps client keys out of the log while letting lines from the
// same client be grouped.
func hashClient(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
