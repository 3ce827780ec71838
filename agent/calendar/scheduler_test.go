package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
)

type fakeClient struct {
	err   error
	calls int
	ids   []string
}

func (f *fakeClient) CreateEvent(ctx context.Context, w contractx.ScheduleWindow, eventID string) (contractx.EventRef, error) {
	f.calls++
	f.ids = append(f.ids, eventID)
	if f.err != nil {
		return contractx.EventRef{}, f.err
	}
	return contractx.EventRef{ID: eventID, Link: "https://calendar.example/" + eventID}, nil
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []contractx.JournalEntry
}

func (m *memoryJournal) Record(ctx context.Context, e contractx.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func connectTo(c contractx.CalendarClient) ConnectFunc {
	return func(context.Context, credential.Resolution) (contractx.CalendarClient, error) {
		return c, nil
	}
}

func validRequest() contractx.ScheduleRequest {
	return contractx.ScheduleRequest{
		Summary:   "Intro call",
		Attendees: []string{"a@example.com"},
		StartTime: "2025-03-01T10:00:00Z",
		EndTime:   "2025-03-01T10:30:00Z",
	}
}

func TestSchedulerSchedule(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	j := &memoryJournal{}
	s := NewScheduler(connectTo(client), j)

	ctx := contractx.WithRequestID(context.Background(), "req-1")
	out, err := s.Schedule(ctx, credential.Resolution{APIKey: "tok"}, validRequest(), "ev1", "schedule")
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if out.EventID != "ev1" || out.Message != CreatedMessage {
		t.Fatalf("unexpected response: %+v", out)
	}
	if len(j.entries) != 2 || j.entries[0].Outcome != contractx.OutcomeDispatched || j.entries[1].Outcome != contractx.OutcomeSucceeded {
		t.Fatalf("unexpected journal: %+v", j.entries)
	}
}

func TestSchedulerAmbiguousOutcomeIsJournaled(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: fmt.Errorf("%w: timeout", contractx.ErrAmbiguousSideEffect)}
	j := &memoryJournal{}
	s := NewScheduler(connectTo(client), j)

	ctx := contractx.WithRequestID(context.Background(), "req-1")
	_, err := s.Schedule(ctx, credential.Resolution{APIKey: "tok"}, validRequest(), "ev1", "call-1")
	if !errors.Is(err, contractx.ErrAmbiguousSideEffect) {
		t.Fatalf("expected ErrAmbiguousSideEffect, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("CreateEvent called %d times, want 1", client.calls)
	}
	last := j.entries[len(j.entries)-1]
	if last.Outcome != contractx.OutcomeAmbiguous || last.EventID != "ev1" || last.Error == "" {
		t.Fatalf("unexpected journal entry: %+v", last)
	}
}

func TestSchedulerRejectsInvalidRequestBeforeConnecting(t *testing.T) {
	t.Parallel()

	connected := false
	s := NewScheduler(func(context.Context, credential.Resolution) (contractx.CalendarClient, error) {
		connected = true
		return &fakeClient{}, nil
	}, nil)

	req := validRequest()
	req.EndTime = "2025-03-01T09:00:00Z"
	_, err := s.Schedule(context.Background(), credential.Resolution{}, req, "ev1", "schedule")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if connected {
		t.Fatal("calendar must not be contacted for an invalid request")
	}
}
