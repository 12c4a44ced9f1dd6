package domain

import (
	"strconv"
	"testing"
)

func TestAppendTurnKeepsChronologicalTail(t *testing.T) {
	var history []Turn
	var all []Turn
	for i := 0; i < 25; i++ {
		turn := Turn{Role: RoleUser, Text: strconv.Itoa(i)}
		all = append(all, turn)
		history = AppendTurn(history, turn, 10)
		if len(history) > 10 {
			t.Fatalf("history length %d exceeds limit", len(history))
		}
	}

	want := all[len(all)-10:]
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("turn %d: expected %q, got %q", i, want[i].Text, history[i].Text)
		}
	}
}

func TestAppendTurnDoesNotAlias(t *testing.T) {
	base := make([]Turn, 1, 4)
	base[0] = Turn{Role: RoleUser, Text: "a"}

	first := AppendTurn(base, Turn{Role: RoleAssistant, Text: "b"}, 10)
	second := AppendTurn(base, Turn{Role: RoleAssistant, Text: "c"}, 10)

	if first[1].Text != "b" || second[1].Text != "c" {
		t.Fatalf("expected independent slices, got %q and %q", first[1].Text, second[1].Text)
	}
}

func TestPageContextIsProjectPage(t *testing.T) {
	cases := []struct {
		ctx  *PageContext
		want bool
	}{
		{nil, false},
		{&PageContext{CurrentPage: "/"}, false},
		{&PageContext{CurrentPage: "/projects/42"}, false},
		{&PageContext{CurrentPage: "/projects", ProjectID: "42"}, false},
		{&PageContext{CurrentPage: "/projects/42", ProjectID: "42"}, true},
	}
	for _, tc := range cases {
		if got := tc.ctx.IsProjectPage(); got != tc.want {
			t.Errorf("IsProjectPage(%+v) = %v, want %v", tc.ctx, got, tc.want)
		}
	}
}

func TestProjectHasRequiredFields(t *testing.T) {
	p := Project{Title: "t", Description: "d", TechStack: []string{"go"}, Content: "c"}
	if !p.HasRequiredFields() {
		t.Fatal("expected complete project to validate")
	}
	p.TechStack = nil
	if p.HasRequiredFields() {
		t.Fatal("expected project without tech stack to fail validation")
	}
}
