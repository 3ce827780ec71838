package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/agent/gate"
)

const (
	CreatedMessage = "Calendar event created successfully"
	journalTool    = "calendar_create_event"
)

// ConnectFunc returns a calendar client for a resolved credential.
type ConnectFunc func(ctx context.Context, cred credential.Resolution) (contractx.CalendarClient, error)

// Scheduler validates a scheduling request, creates the event and journals
// what was observed. /schedule and the calendar tool both go through it.
type Scheduler struct {
	connect ConnectFunc
	journal contractx.Journal
	now     func() time.Time
}

func NewScheduler(connect ConnectFunc, journal contractx.Journal) *Scheduler {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Scheduler{connect: connect, journal: journal, now: time.Now}
}

func (s *Scheduler) Schedule(
	ctx context.Context,
	cred credential.Resolution,
	req contractx.ScheduleRequest,
	eventID string,
	callID string,
) (contractx.ScheduleResponse, error) {
	window, err := gate.ValidateSchedule(req)
	if err != nil {
		return contractx.ScheduleResponse{}, err
	}

	client, err := s.connect(ctx, cred)
	if err != nil {
		return contractx.ScheduleResponse{}, err
	}

	entry := contractx.JournalEntry{
		RequestID: contractx.RequestID(ctx),
		CallID:    callID,
		Tool:      journalTool,
		EventID:   eventID,
		Outcome:   contractx.OutcomeDispatched,
	}
	s.record(ctx, entry)

	ref, err := client.CreateEvent(ctx, window, eventID)

	entry.Outcome = outcomeOf(err)
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.EventID = ref.ID
	}
	// The outcome is recorded even when the caller has gone away.
	s.record(context.WithoutCancel(ctx), entry)

	if err != nil {
		return contractx.ScheduleResponse{}, err
	}
	return contractx.ScheduleResponse{
		EventID:   ref.ID,
		EventLink: ref.Link,
		Message:   CreatedMessage,
	}, nil
}

func (s *Scheduler) record(ctx context.Context, entry contractx.JournalEntry) {
	entry.At = s.now().UTC()
	if entry.RequestID == "" || entry.CallID == "" {
		return
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("call_id", entry.CallID).Str("outcome", string(entry.Outcome)).Msg("journal write failed")
	}
}

func outcomeOf(err error) contractx.Outcome {
	switch {
	case err == nil:
		return contractx.OutcomeSucceeded
	case errors.Is(err, contractx.ErrAmbiguousSideEffect):
		return contractx.OutcomeAmbiguous
	default:
		return contractx.OutcomeFailed
	}
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, contractx.JournalEntry) error { return nil }
