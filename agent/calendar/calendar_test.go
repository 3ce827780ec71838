package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
)

type insertedEvent struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
	Reminders struct {
		UseDefault bool `json:"useDefault"`
	} `json:"reminders"`
	Start struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
}

type fakeCalendarAPI struct {
	mu       sync.Mutex
	status   int
	inserted []insertedEvent
	auth     []string
	// stored overrides what a GET returns for an id.
	stored map[string]insertedEvent
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/calendar/v3/calendars/primary/events":
		var ev insertedEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.inserted = append(f.inserted, ev)
		if f.status != 0 {
			w.WriteHeader(f.status)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"injected"}}`, f.status)
			return
		}
		fmt.Fprintf(w, `{"id":%q,"htmlLink":"https://calendar.example/event?eid=%s"}`, ev.ID, ev.ID)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/calendar/v3/calendars/primary/events/"):
		id := strings.TrimPrefix(r.URL.Path, "/calendar/v3/calendars/primary/events/")
		ev, ok := f.stored[id]
		if !ok {
			for _, in := range f.inserted {
				if in.ID == id {
					ev, ok = in, true
				}
			}
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"id":%q,"summary":%q,"start":{"dateTime":%q},"htmlLink":"https://calendar.example/event?eid=%s"}`,
			id, ev.Summary, ev.Start.DateTime, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCalendarAPI) snapshot() ([]insertedEvent, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]insertedEvent(nil), f.inserted...), append([]string(nil), f.auth...)
}

func newTestConnector(t *testing.T, api *fakeCalendarAPI) *Connector {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return NewConnector(Config{Endpoint: server.URL + "/calendar/v3/"}, server.Client())
}

func testWindow() contractx.ScheduleWindow {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return contractx.ScheduleWindow{
		Summary:   "Intro call",
		Attendees: []string{"a@example.com", "b@example.com"},
		Start:     start,
		End:       start.Add(30 * time.Minute),
		TimeZone:  "UTC",
	}
}

func TestClientCreateEvent(t *testing.T) {
	t.Parallel()

	api := &fakeCalendarAPI{}
	conn := newTestConnector(t, api)

	client, err := conn.Connect(context.Background(), credential.Resolution{APIKey: "ya29.token"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ref, err := client.CreateEvent(context.Background(), testWindow(), "abc123")
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if ref.ID != "abc123" || !strings.Contains(ref.Link, "abc123") {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	inserted, auth := api.snapshot()
	if len(inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(inserted))
	}
	got := inserted[0]
	if got.Summary != "Intro call" || len(got.Attendees) != 2 || !got.Reminders.UseDefault {
		t.Fatalf("unexpected event body: %+v", got)
	}
	if got.Start.DateTime != "2025-03-01T10:00:00Z" || got.Start.TimeZone != "UTC" {
		t.Fatalf("unexpected start: %+v", got.Start)
	}
	if auth[0] != "Bearer ya29.token" {
		t.Fatalf("Authorization = %q", auth[0])
	}
}

func TestClientCreateEventConflictReturnsExisting(t *testing.T) {
	t.Parallel()

	api := &fakeCalendarAPI{status: http.StatusConflict}
	client, err := newTestConnector(t, api).Connect(context.Background(), credential.Resolution{APIKey: "tok"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ref, err := client.CreateEvent(context.Background(), testWindow(), "dup123")
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if ref.ID != "dup123" {
		t.Fatalf("expected existing event, got %+v", ref)
	}
}

func TestClientCreateEventConflictWithDifferentEvent(t *testing.T) {
	t.Parallel()

	other := insertedEvent{ID: "dup123", Summary: "Board review"}
	other.Start.DateTime = "2025-03-01T10:00:00Z"
	api := &fakeCalendarAPI{status: http.StatusConflict, stored: map[string]insertedEvent{"dup123": other}}
	client, err := newTestConnector(t, api).Connect(context.Background(), credential.Resolution{APIKey: "tok"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ref, err := client.CreateEvent(context.Background(), testWindow(), "dup123")
	if !errors.Is(err, contractx.ErrToolFailure) {
		t.Fatalf("CreateEvent() = %+v, %v; want ErrToolFailure", ref, err)
	}
}

func TestClientCreateEventClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{status: http.StatusInternalServerError, want: contractx.ErrAmbiguousSideEffect},
		{status: http.StatusBadRequest, want: contractx.ErrToolFailure},
		{status: http.StatusUnauthorized, want: contractx.ErrCalendarUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			api := &fakeCalendarAPI{status: tt.status}
			client, err := newTestConnector(t, api).Connect(context.Background(), credential.Resolution{APIKey: "tok"})
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			_, err = client.CreateEvent(context.Background(), testWindow(), "e1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConnectWithoutCredential(t *testing.T) {
	t.Parallel()

	_, err := NewConnector(Config{}, nil).Connect(context.Background(), credential.Resolution{})
	if !errors.Is(err, contractx.ErrCalendarUnavailable) {
		t.Fatalf("expected ErrCalendarUnavailable, got %v", err)
	}
}
