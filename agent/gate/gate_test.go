package gate

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		presented string
		expected  string
		wantErr   bool
	}{
		{name: "match", presented: "s3cret", expected: "s3cret"},
		{name: "missing", presented: "", expected: "s3cret", wantErr: true},
		{name: "mismatch", presented: "s3creT", expected: "s3cret", wantErr: true},
		{name: "server unset", presented: "x", expected: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Authenticate(tt.presented, tt.expected)
			if tt.wantErr && !errors.Is(err, contractx.ErrAuth) {
				t.Fatalf("expected ErrAuth, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateChat(t *testing.T) {
	t.Parallel()

	ok := contractx.ChatRequest{
		Turns:        []contractx.Turn{{Speaker: "a", Text: "hi"}},
		SystemPrompt: "sys",
	}
	if err := ValidateChat(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	noTurns := ok
	noTurns.Turns = nil
	if err := ValidateChat(noTurns); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	noSystem := ok
	noSystem.SystemPrompt = " "
	if err := ValidateChat(noSystem); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	blankTurn := ok
	blankTurn.Turns = []contractx.Turn{{Speaker: "bob", Text: ""}, {Speaker: "a", Text: "hi"}}
	if err := ValidateChat(blankTurn); err != nil {
		t.Fatalf("a blank historical turn must be accepted, got %v", err)
	}
}

func TestValidateScheduleEndBeforeStart(t *testing.T) {
	t.Parallel()

	_, err := ValidateSchedule(contractx.ScheduleRequest{
		Summary:   "Intro call",
		Attendees: []string{"a@example.com"},
		StartTime: "2025-03-01T10:00:00Z",
		EndTime:   "2025-03-01T09:00:00Z",
	})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	_, err = ValidateSchedule(contractx.ScheduleRequest{
		Summary:   "Intro call",
		Attendees: []string{"a@example.com"},
		StartTime: "2025-03-01T10:00:00Z",
		EndTime:   "2025-03-01T10:00:00Z",
	})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("equal start and end: expected ErrValidation, got %v", err)
	}
}

func TestValidateScheduleLocalTimeZone(t *testing.T) {
	t.Parallel()

	w, err := ValidateSchedule(contractx.ScheduleRequest{
		Summary:   " Intro call ",
		Attendees: []string{"Bob <bob@example.com>", "bob@example.com", "carol@example.com"},
		StartTime: "2025-03-01T10:00:00",
		EndTime:   "2025-03-01T10:30:00",
		TimeZone:  "Asia/Bangkok",
	})
	if err != nil {
		t.Fatalf("ValidateSchedule() error = %v", err)
	}
	if w.Summary != "Intro call" {
		t.Fatalf("Summary = %q", w.Summary)
	}
	if len(w.Attendees) != 2 || w.Attendees[0] != "bob@example.com" {
		t.Fatalf("Attendees = %v", w.Attendees)
	}
	want := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	if !w.Start.Equal(want) {
		t.Fatalf("Start = %v, want %v", w.Start, want)
	}
	if w.End.Sub(w.Start) != 30*time.Minute {
		t.Fatalf("unexpected duration %v", w.End.Sub(w.Start))
	}
}

func TestValidateScheduleRejects(t *testing.T) {
	t.Parallel()

	base := contractx.ScheduleRequest{
		Summary:   "Intro",
		Attendees: []string{"a@example.com"},
		StartTime: "2025-03-01T10:00:00Z",
		EndTime:   "2025-03-01T11:00:00Z",
	}

	cases := map[string]func(r *contractx.ScheduleRequest){
		"no summary":    func(r *contractx.ScheduleRequest) { r.Summary = "" },
		"no attendees":  func(r *contractx.ScheduleRequest) { r.Attendees = nil },
		"bad attendee":  func(r *contractx.ScheduleRequest) { r.Attendees = []string{"not-an-email"} },
		"bad start":     func(r *contractx.ScheduleRequest) { r.StartTime = "tomorrow" },
		"missing end":   func(r *contractx.ScheduleRequest) { r.EndTime = "" },
		"bad time zone": func(r *contractx.ScheduleRequest) { r.TimeZone = "Mars/Olympus" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			req := base
			mutate(&req)
			if _, err := ValidateSchedule(req); !errors.Is(err, contractx.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}
