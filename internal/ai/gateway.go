package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ashureev/portfolio/internal/domain"
)

// FallbackReply is sent to the visitor when a reply could not be generated.
const FallbackReply = "Meow! Sorry, I encountered an error while trying to answer your question. Please try again later."

// MaxSuggestions is the most suggestions returned or sent in one batch.
const MaxSuggestions = 3

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

// GatewayConfig tunes grounding lookups and generation.
type GatewayConfig struct {
	Threshold   float64
	Limit       int
	Temperature float64
	MaxTokens   int
	Observer    Observer
}

// Gateway builds prompts from the project catalog and page context and asks
// the model for replies and follow-up suggestions.
type Gateway struct {
	model    Model
	projects ProjectSource
	cfg      GatewayConfig
	logger   *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(model Model, projects ProjectSource, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 3
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{model: model, projects: projects, cfg: cfg, logger: logger}
}

// GenerateReply answers query in the persona of the portfolio assistant,
// grounded on the projects most similar to the query. history is the
// conversation so far; if it does not already end with query as a user turn,
// query is appended.
func (g *Gateway) GenerateReply(ctx context.Context, query string, history []domain.Turn, page *domain.PageContext) (reply string, err error) {
	start := time.Now()
	defer func() { g.observe("reply", start, err) }()

	grounding := g.groundingProjects(ctx, query, page)
	system := buildReplyPrompt(grounding, pageHint(page, grounding))

	turns := make([]domain.Turn, 0, len(history)+1)
	turns = append(turns, history...)
	if n := len(turns); n == 0 || turns[n-1].Role != domain.RoleUser || turns[n-1].Text != query {
		turns = append(turns, domain.Turn{Role: domain.RoleUser, Text: query})
	}

	reply, err = g.model.Complete(ctx, CompletionRequest{
		System:      system,
		Turns:       turns,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return reply, nil
}

// GenerateSuggestions proposes up to three follow-up questions for the page
// the visitor is on. A model answer that cannot be parsed yields an empty
// slice and no error.
func (g *Gateway) GenerateSuggestions(ctx context.Context, page domain.PageContext, history []domain.Turn) (suggestions []string, err error) {
	start := time.Now()
	defer func() { g.observe("suggestions", start, err) }()

	contextInfo, related := g.suggestionContext(ctx, page)
	prompt := buildSuggestionPrompt(contextInfo, related, history)

	raw, err := g.model.Complete(ctx, CompletionRequest{
		Turns:       []domain.Turn{{Role: domain.RoleUser, Text: prompt}},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}
	return parseSuggestions(raw), nil
}

// groundingProjects returns the projects used to ground a reply. Lookup
// failures are logged and produce no grounding.
func (g *Gateway) groundingProjects(ctx context.Context, query string, page *domain.PageContext) []*domain.Project {
	projects, err := g.projects.SearchProjects(ctx, query, g.cfg.Threshold, g.cfg.Limit)
	if err != nil {
		g.logger.Warn("project search failed, answering without grounding", "error", err)
		projects = nil
	}

	if !page.IsProjectPage() {
		return projects
	}

	current, err := g.projects.GetProject(ctx, page.ProjectID)
	if err != nil {
		g.logger.Warn("failed to load current project", "project_id", page.ProjectID, "error", err)
		return projects
	}

	ordered := make([]*domain.Project, 0, len(projects)+1)
	ordered = append(ordered, current)
	for _, p := range projects {
		if p.ID != current.ID {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

func (g *Gateway) suggestionContext(ctx context.Context, page domain.PageContext) (string, []*domain.Project) {
	switch {
	case page.CurrentPage == "/":
		projects, err := g.projects.ListProjects(ctx, domain.ListOptions{FeaturedOnly: true, Limit: 3})
		if err != nil {
			g.logger.Warn("failed to list featured projects", "error", err)
		}
		return "The user is on the homepage of the portfolio website.", projects
	case page.CurrentPage == "/projects":
		projects, err := g.projects.ListProjects(ctx, domain.ListOptions{Limit: 5})
		if err != nil {
			g.logger.Warn("failed to list projects", "error", err)
		}
		return "The user is viewing the projects list page.", projects
	case page.IsProjectPage():
		p, err := g.projects.GetProject(ctx, page.ProjectID)
		if err != nil {
			g.logger.Warn("failed to load current project", "project_id", page.ProjectID, "error", err)
			return "", nil
		}
		info := fmt.Sprintf("The user is viewing the project %q which uses technologies: %s.", p.Title, strings.Join(p.TechStack, ", "))
		return info, []*domain.Project{p}
	case page.CurrentPage == "/about":
		return "The user is on the about page, which contains information about the developer.", nil
	case page.CurrentPage == "/contact":
		return "The user is on the contact page, which contains a contact form and contact information.", nil
	default:
		return "", nil
	}
}

func (g *Gateway) observe(op string, start time.Time, err error) {
	if g.cfg.Observer != nil {
		g.cfg.Observer.ObserveGatewayCall(op, time.Since(start), err)
	}
}

func pageHint(page *domain.PageContext, grounding []*domain.Project) string {
	if page == nil {
		return ""
	}
	switch {
	case page.CurrentPage == "/":
		return "The user is currently on the homepage."
	case page.CurrentPage == "/projects":
		return "The user is currently viewing the projects list page."
	case page.IsProjectPage():
		for _, p := range grounding {
			if p.ID == page.ProjectID {
				return fmt.Sprintf("The user is currently viewing the project %q.", p.Title)
			}
		}
		return ""
	case page.CurrentPage == "/about":
		return "The user is currently on the about page."
	case page.CurrentPage == "/contact":
		return "The user is currently on the contact page."
	default:
		return ""
	}
}

func buildReplyPrompt(grounding []*domain.Project, hint string) string {
	projectContext := "No specific project information available."
	if len(grounding) > 0 {
		blocks := make([]string, 0, len(grounding))
		for _, p := range grounding {
			blocks = append(blocks, fmt.Sprintf("PROJECT: %s\nDESCRIPTION: %s\nDETAILS: %s", p.Title, p.Description, p.Content))
		}
		projectContext = strings.Join(blocks, "\n\n")
	}

	var sb strings.Builder
	sb.WriteString("You are a witty black cat AI assistant named \"Witty\" for a developer portfolio website.\n")
	sb.WriteString("Respond with wit, charm, and occasional cat-like mannerisms.\n")
	sb.WriteString("Answer questions about the developer's projects based ONLY on the following provided information:\n\n")
	sb.WriteString(projectContext)
	sb.WriteString("\n\n")
	if hint != "" {
		sb.WriteString("Current context: ")
		sb.WriteString(hint)
		sb.WriteString("\n\n")
	}
	sb.WriteString("If asked about something not in the provided information, state that you can only discuss the projects you know about.\n")
	sb.WriteString("Keep responses concise but informative, explaining technical choices and challenges when relevant.\n")
	return sb.String()
}

func buildSuggestionPrompt(contextInfo string, related []*domain.Project, history []domain.Turn) string {
	var sb strings.Builder
	sb.WriteString("You are a witty black cat AI assistant for a developer portfolio website.\n")
	sb.WriteString("Based on the user's current context and conversation history, generate 3 proactive suggestions or questions that the user might want to ask.\n")
	sb.WriteString("These should be relevant to the current page and any projects being viewed.\n\n")
	sb.WriteString("Current context: ")
	sb.WriteString(contextInfo)
	sb.WriteString("\n\n")

	if len(related) > 0 {
		sb.WriteString("Relevant projects:\n")
		for _, p := range related {
			fmt.Fprintf(&sb, "PROJECT: %s\nDESCRIPTION: %s\n\n", p.Title, p.Description)
		}
	}

	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, t := range history {
			speaker := "User"
			if t.Role == domain.RoleAssistant {
				speaker = "AI"
			}
			fmt.Fprintf(&sb, "%s: %s\n", speaker, t.Text)
		}
	} else {
		sb.WriteString("No conversation history yet.\n")
	}

	sb.WriteString("\nGenerate 3 short, specific questions or suggestions that would be helpful for the user in this context.\n")
	sb.WriteString("Format your response as a JSON array of strings, with each string being a suggestion.\n")
	sb.WriteString(`Example: ["Tell me more about the tech stack used in this project", "What challenges did you face?", "Can I see the source code?"]`)
	sb.WriteString("\n")
	return sb.String()
}

// parseSuggestions extracts the first JSON array from a model answer. Text
// after the array is ignored. If no array decodes cleanly, the first bracketed
// span is repaired once; anything still unparseable yields nil.
func parseSuggestions(raw string) []string {
	first := strings.IndexByte(raw, '[')
	if first < 0 {
		return nil
	}

	items, ok := decodeFirstArray(raw[first:])
	if !ok {
		items, ok = repairArray(raw[first:])
		if !ok {
			return nil
		}
	}

	out := make([]string, 0, MaxSuggestions)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

// decodeFirstArray decodes a single JSON array starting at each '[' in turn.
func decodeFirstArray(s string) ([]any, bool) {
	for {
		i := strings.IndexByte(s, '[')
		if i < 0 {
			return nil, false
		}
		var items []any
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&items); err == nil {
			return items, true
		}
		s = s[i+1:]
	}
}

// repairArray runs jsonrepair over s up to its first closing bracket.
func repairArray(s string) ([]any, bool) {
	if end := strings.IndexByte(s, ']'); end >= 0 {
		s = s[:end+1]
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	var items []any
	if err := json.Unmarshal([]byte(repaired), &items); err != nil {
		return nil, false
	}
	return items, true
}

// IsTimeout reports whether err came from a deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
