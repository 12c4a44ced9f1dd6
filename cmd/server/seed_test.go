package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeed(t *testing.T) {
	doc := `
projects:
  - title: Witty
    description: Portfolio chat cat
    tech_stack: [Go, SQLite]
    repo_link: https://example.com/witty
    content: |
      # Witty
      Answers questions about projects.
    is_featured: true
  - title: Shell Labs
    description: Browser terminals
    tech_stack:
      - Go
      - Docker
    content: "# Shell Labs"
`
	projects, err := parseSeed(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, projects, 2)

	assert.Equal(t, "Witty", projects[0].Title)
	assert.Equal(t, []string{"Go", "SQLite"}, projects[0].TechStack)
	assert.True(t, projects[0].IsFeatured)
	assert.Contains(t, projects[0].Content, "Answers questions")
	assert.Equal(t, []string{"Go", "Docker"}, projects[1].TechStack)
	assert.False(t, projects[1].IsFeatured)
	assert.Empty(t, projects[1].ID)
}

func TestParseSeedMissingFields(t *testing.T) {
	doc := `
projects:
  - title: Incomplete
    description: no stack or content
`
	_, err := parseSeed(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incomplete")
}

func TestParseSeedEmpty(t *testing.T) {
	projects, err := parseSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestParseSeedInvalidYAML(t *testing.T) {
	_, err := parseSeed(strings.NewReader("projects: [unterminated"))
	require.Error(t, err)
}
