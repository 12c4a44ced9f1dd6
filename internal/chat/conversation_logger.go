package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConversationLogConfig controls transcript logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// MaxOpenFiles caps cached per-connection file handles. The least recently
	// written file is closed when the cap is reached.
	MaxOpenFiles int
}

// ConversationLogEvent is one NDJSON transcript line.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	VisitorID  string         `json:"visitor_id"`
	ConnID     string         `json:"conn_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`

	end bool
}

// ConversationLogger records chat transcripts.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	// EndConversation records the end of a connection and releases its file.
	EndConversation(visitorID, connID string)
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent)       {}
func (noopConversationLogger) EndConversation(string, string) {}
func (noopConversationLogger) Close() error                   { return nil }

type fileConversationLogger struct {
	dir     string
	global  io.WriteCloser
	events  chan ConversationLogEvent
	done    chan struct{}
	logger  *slog.Logger
	files   *lru.Cache[string, *os.File]
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewConversationLogger returns a logger writing one NDJSON file per
// connection under cfg.Dir, plus an optional rotated global file. Events are
// written asynchronously and dropped when the queue is full.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = 256
	}

	files, err := lru.NewWithEvict[string, *os.File](cfg.MaxOpenFiles, func(path string, f *os.File) {
		if err := f.Close(); err != nil {
			logger.Debug("failed to close conversation log", "path", path, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation file cache: %w", err)
	}

	l := &fileConversationLogger{
		events: make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
		files:  files,
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
		l.dir = cfg.Dir
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		l.global = &lumberjack.Logger{
			Filename:   cfg.GlobalPath,
			MaxSize:    50,
			MaxBackups: 5,
			Compress:   true,
		}
	}

	go l.run()
	return l, nil
}

func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" && event.ContentRaw != "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.enqueue(event)
}

func (l *fileConversationLogger) EndConversation(visitorID, connID string) {
	l.enqueue(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID: visitorID,
		ConnID:    connID,
		Channel:   "chat_ws",
		Direction: "system",
		EventType: "connection_closed",
		end:       true,
	})
}

func (l *fileConversationLogger) enqueue(event ConversationLogEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.events <- event:
	default:
		if n := l.dropped.Add(1); n%100 == 1 {
			l.logger.Warn("Conversation log queue full, dropping events", "dropped", n)
		}
	}
}

func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()

	<-l.done

	l.files.Purge()
	if l.global != nil {
		return l.global.Close()
	}
	return nil
}

// openFiles reports how many per-connection files are currently held open.
func (l *fileConversationLogger) openFiles() int {
	return l.files.Len()
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.events {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Debug("failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.dir != "" {
			path := l.sessionPath(event)
			if err := l.writeSessionLine(path, line); err != nil {
				l.logger.Debug("failed to write conversation log", "conn_id", event.ConnID, "error", err)
			}
			if event.end {
				l.files.Remove(path)
			}
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Debug("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileConversationLogger) sessionPath(event ConversationLogEvent) string {
	return filepath.Join(l.dir, safePathSegment(event.VisitorID), safePathSegment(event.ConnID)+".ndjson")
}

func (l *fileConversationLogger) writeSessionLine(path string, line []byte) error {
	f, ok := l.files.Get(path)
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		l.files.Add(path, f)
	}
	_, err := f.Write(line)
	return err
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safePathSegment(s string) string {
	s = unsafeSegment.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0e-\x1f\x7f]`)

// cleanForReadability drops control characters and collapses whitespace.
func cleanForReadability(raw string) string {
	s := controlChars.ReplaceAllString(raw, "")
	return strings.Join(strings.Fields(s), " ")
}
