package task

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSubmitted, StatusWorking, true},
		{StatusSubmitted, StatusCanceled, false}, // must pass through working
		{StatusSubmitted, StatusCompleted, false},
		{StatusSubmitted, StatusFailed, false},
		{StatusWorking, StatusCompleted, true},
		{StatusWorking, StatusFailed, true},
		{StatusWorking, StatusInputRequired, true},
		{StatusWorking, StatusCanceled, true},
		{StatusInputRequired, StatusWorking, true},
		{StatusInputRequired, StatusCompleted, false},
		{StatusCompleted, StatusWorking, false}, // terminal states are final
		{StatusFailed, StatusWorking, false},
		{StatusCanceled, StatusCompleted, false},
		{StatusCanceled, StatusWorking, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCanceled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusSubmitted, StatusWorking, StatusInputRequired} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestUserText(t *testing.T) {
	tk := &Task{History: []Message{
		{Role: RoleUser, Parts: []Part{TextPart("first question")}},
		{Role: RoleAgent, Parts: []Part{TextPart("an answer")}},
		{Role: RoleUser, Parts: []Part{TextPart("follow-up question")}},
	}}
	if got := tk.UserText(); got != "follow-up question" {
		t.Errorf("UserText() = %q, want the latest user message", got)
	}

	empty := &Task{}
	if got := empty.UserText(); got != "" {
		t.Errorf("UserText() on empty history = %q, want empty", got)
	}
}

func TestUnavailableSources(t *testing.T) {
	r := &Result{Sources: []SourceResult{
		{Specialist: "weather-1"},
		{Specialist: "events-1", Unavailable: true},
		{Specialist: "news-1", Unavailable: true},
	}}
	got := r.UnavailableSources()
	if len(got) != 2 || got[0] != "events-1" || got[1] != "news-1" {
		t.Errorf("UnavailableSources() = %v", got)
	}
}
