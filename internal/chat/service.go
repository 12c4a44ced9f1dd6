package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/portfolio/internal/ai"
	"github.com/ashureev/portfolio/internal/domain"
)

const malformedReply = "Error processing your request"

// Gateway produces replies and proactive suggestions.
type Gateway interface {
	GenerateReply(ctx context.Context, query string, history []domain.Turn, page *domain.PageContext) (string, error)
	GenerateSuggestions(ctx context.Context, page domain.PageContext, history []domain.Turn) ([]string, error)
}

// Observer records chat telemetry.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	ObserveInbound(msgType string)
	ObserveSuggestionBatch()
}

type noopObserver struct{}

func (noopObserver) ConnectionOpened()       {}
func (noopObserver) ConnectionClosed()       {}
func (noopObserver) ObserveInbound(string)   {}
func (noopObserver) ObserveSuggestionBatch() {}

// Config holds the session timing parameters.
type Config struct {
	HistoryLimit           int
	ReplyTimeout           time.Duration
	SuggestionTimeout      time.Duration
	SuggestionAfterChat    time.Duration
	SuggestionAfterContext time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = 10 * time.Second
	}
	if c.SuggestionTimeout <= 0 {
		c.SuggestionTimeout = c.ReplyTimeout
	}
	if c.SuggestionAfterChat <= 0 {
		c.SuggestionAfterChat = 10 * time.Second
	}
	if c.SuggestionAfterContext <= 0 {
		c.SuggestionAfterContext = 5 * time.Second
	}
	return c
}

// Service drives session transitions for inbound messages.
type Service struct {
	gateway   Gateway
	registry  *Registry
	scheduler *Scheduler
	cfg       Config
	logger    *slog.Logger
	convLog   ConversationLogger
	observer  Observer
}

// NewService creates a Service.
func NewService(gateway Gateway, registry *Registry, scheduler *Scheduler, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway:   gateway,
		registry:  registry,
		scheduler: scheduler,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		convLog:   noopConversationLogger{},
		observer:  noopObserver{},
	}
}

// SetConversationLogger sets the transcript logger.
func (s *Service) SetConversationLogger(l ConversationLogger) {
	if l != nil {
		s.convLog = l
	}
}

// SetObserver sets the telemetry observer.
func (s *Service) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// Handle decodes raw and dispatches it. Decode failures are reported to the
// client and leave the session unchanged.
func (s *Service) Handle(ctx context.Context, sess *Session, raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		s.RejectMalformed(sess, err)
		return
	}
	s.Dispatch(ctx, sess, msg)
}

// RejectMalformed sends the error reply for a message that failed to decode.
func (s *Service) RejectMalformed(sess *Session, err error) {
	var unknown *UnknownTypeError
	if errors.As(err, &unknown) {
		s.observer.ObserveInbound("unknown")
		s.logger.Warn("Unknown chat message type", "conn_id", sess.ID(), "type", unknown.Type)
		s.emit(sess, ErrorMessage{Message: fmt.Sprintf("Unknown message type: %s", unknown.Type)})
		return
	}
	s.observer.ObserveInbound("malformed")
	s.logger.Warn("Malformed chat message", "conn_id", sess.ID(), "error", err)
	s.emit(sess, ErrorMessage{Message: malformedReply})
}

// Dispatch applies one decoded client message to the session.
func (s *Service) Dispatch(ctx context.Context, sess *Session, msg Message) {
	s.observer.ObserveInbound(msg.Type())
	switch m := msg.(type) {
	case ChatMessage:
		s.handleChat(ctx, sess, m)
	case ContextUpdate:
		s.handleContext(sess, m)
	default:
		s.emit(sess, ErrorMessage{Message: fmt.Sprintf("Unknown message type: %s", msg.Type())})
	}
}

func (s *Service) handleChat(ctx context.Context, sess *Session, m ChatMessage) {
	query := strings.TrimSpace(m.Message)
	if query == "" {
		s.emit(sess, ErrorMessage{Message: "Message must not be empty"})
		return
	}

	sess.appendTurn(domain.Turn{Role: domain.RoleUser, Text: query}, s.cfg.HistoryLimit)
	s.scheduler.Disarm(sess.ID())
	s.logConversation(sess, "inbound", "chat_user_message", query)
	s.emit(sess, Typing{IsTyping: true})

	replyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	reply, err := s.gateway.GenerateReply(replyCtx, query, sess.History(), sess.Page())
	cancel()

	if sess.Closed() {
		s.logger.Debug("Discarding reply for closed connection", "conn_id", sess.ID())
		return
	}

	if err != nil {
		s.logger.Warn("Failed to generate reply", "conn_id", sess.ID(), "error", err)
		s.logConversation(sess, "outbound", "chat_fallback_reply", ai.FallbackReply)
		s.emit(sess, AIResponse{Message: ai.FallbackReply})
		s.emit(sess, Typing{IsTyping: false})
		return
	}

	sess.appendTurn(domain.Turn{Role: domain.RoleAssistant, Text: reply}, s.cfg.HistoryLimit)
	s.logConversation(sess, "outbound", "chat_ai_reply", reply)
	s.emit(sess, AIResponse{Message: reply})
	s.emit(sess, Typing{IsTyping: false})
	s.scheduler.Arm(sess.ID(), s.cfg.SuggestionAfterChat, s.suggestionProducer(sess.ID()))
}

func (s *Service) handleContext(sess *Session, m ContextUpdate) {
	sess.setPage(domain.PageContext{CurrentPage: m.CurrentPage, ProjectID: m.ProjectID})
	s.logger.Debug("Updated page context", "conn_id", sess.ID(), "page", m.CurrentPage, "project_id", m.ProjectID)
	s.scheduler.Arm(sess.ID(), s.cfg.SuggestionAfterContext, s.suggestionProducer(sess.ID()))
}

// suggestionProducer looks the session up again when it fires so a closed
// connection is never written to.
func (s *Service) suggestionProducer(id string) Producer {
	return func(ctx context.Context) {
		sess, ok := s.registry.Lookup(id)
		if !ok {
			return
		}
		page := sess.Page()
		if page == nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SuggestionTimeout)
		defer cancel()
		suggestions, err := s.gateway.GenerateSuggestions(callCtx, *page, sess.History())
		if err != nil {
			s.logger.Debug("Failed to generate suggestions", "conn_id", id, "error", err)
			return
		}
		if len(suggestions) == 0 || ctx.Err() != nil || sess.Closed() {
			return
		}
		if len(suggestions) > maxSuggestions {
			suggestions = suggestions[:maxSuggestions]
		}

		s.observer.ObserveSuggestionBatch()
		s.logConversation(sess, "outbound", "chat_suggestions", strings.Join(suggestions, " | "))
		s.emit(sess, Suggestion{Suggestions: suggestions})
	}
}

func (s *Service) emit(sess *Session, msg Message) {
	if err := sess.send(msg); err != nil {
		s.logger.Debug("Failed to send chat message", "conn_id", sess.ID(), "type", msg.Type(), "error", err)
	}
}

// EndConversation closes the transcript of a finished connection.
func (s *Service) EndConversation(sess *Session) {
	s.convLog.EndConversation(sess.Visitor(), sess.ID())
}

func (s *Service) logConversation(sess *Session, direction, eventType, content string) {
	s.convLog.Log(ConversationLogEvent{
		VisitorID:  sess.Visitor(),
		ConnID:     sess.ID(),
		Channel:    "chat_ws",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
	})
}
