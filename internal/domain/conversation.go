package domain

import "strings"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded utterance in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// PageContext describes what the visitor is currently looking at.
type PageContext struct {
	CurrentPage string `json:"currentPage"`
	ProjectID   string `json:"projectId,omitempty"`
}

// IsProjectPage returns true when the context points at a single project detail page.
func (c *PageContext) IsProjectPage() bool {
	return c != nil && c.ProjectID != "" && strings.Contains(c.CurrentPage, "/projects/")
}

// AppendTurn appends t to history and drops the oldest turns beyond limit.
// The returned slice never aliases the input.
func AppendTurn(history []Turn, t Turn, limit int) []Turn {
	out := make([]Turn, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, t)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
