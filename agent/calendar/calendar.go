package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/pkg/httpx"
)

const DefaultCalendarID = "primary"

type Config struct {
	CalendarID  string `envconfig:"ID" default:"primary"`
	SendUpdates string `envconfig:"SEND_UPDATES" default:"all"`
	// Endpoint overrides the Calendar API base URL.
	Endpoint string `envconfig:"ENDPOINT"`
}

// Connector builds Calendar API clients from a resolved credential: an OAuth
// access token supplied with the request, or the process credentials file.
type Connector struct {
	cfg        Config
	httpClient *http.Client
}

func NewConnector(cfg Config, client *http.Client) *Connector {
	if strings.TrimSpace(cfg.CalendarID) == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	if client == nil {
		client = httpx.NewClient(httpx.WithTimeout(0))
	}
	return &Connector{cfg: cfg, httpClient: client}
}

// Connect returns a client for cred. It never dials.
func (c *Connector) Connect(ctx context.Context, cred credential.Resolution) (contractx.CalendarClient, error) {
	var opts []option.ClientOption
	switch {
	case cred.APIKey != "":
		base := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.APIKey, TokenType: "Bearer"})
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(base, ts)))
	case cred.CredentialsFile != "":
		opts = append(opts,
			option.WithCredentialsFile(cred.CredentialsFile),
			option.WithScopes(gcal.CalendarEventsScope),
		)
	default:
		return nil, fmt.Errorf("%w: no calendar credential", contractx.ErrCalendarUnavailable)
	}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrCalendarUnavailable, err)
	}
	return &Client{events: svc.Events, calendarID: c.cfg.CalendarID, sendUpdates: c.cfg.SendUpdates}, nil
}

// Client creates events on one calendar.
type Client struct {
	events      *gcal.EventsService
	calendarID  string
	sendUpdates string
}

var _ contractx.CalendarClient = (*Client)(nil)

// CreateEvent inserts an event with a caller-chosen id. Inserting the same id
// twice returns the existing event instead of a duplicate.
func (c *Client) CreateEvent(ctx context.Context, w contractx.ScheduleWindow, eventID string) (contractx.EventRef, error) {
	attendees := make([]*gcal.EventAttendee, 0, len(w.Attendees))
	for _, a := range w.Attendees {
		attendees = append(attendees, &gcal.EventAttendee{Email: a})
	}

	ev := &gcal.Event{
		Id:          eventID,
		Summary:     w.Summary,
		Description: w.Description,
		Start:       &gcal.EventDateTime{DateTime: w.Start.Format(time.RFC3339), TimeZone: w.TimeZone},
		End:         &gcal.EventDateTime{DateTime: w.End.Format(time.RFC3339), TimeZone: w.TimeZone},
		Attendees:   attendees,
		Reminders:   &gcal.EventReminders{UseDefault: true},
	}

	call := c.events.Insert(c.calendarID, ev).Context(ctx)
	if c.sendUpdates != "" {
		call = call.SendUpdates(c.sendUpdates)
	}
	created, err := call.Do()
	if err != nil {
		var apiErr *googleapi.Error
		if eventID != "" && errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			existing, getErr := c.events.Get(c.calendarID, eventID).Context(ctx).Do()
			if getErr != nil {
				return contractx.EventRef{}, classify(getErr)
			}
			if !sameEvent(existing, w) {
				return contractx.EventRef{}, fmt.Errorf("%w: event id %s already belongs to a different event", contractx.ErrToolFailure, eventID)
			}
			return contractx.EventRef{ID: existing.Id, Link: existing.HtmlLink}, nil
		}
		return contractx.EventRef{}, classify(err)
	}
	return contractx.EventRef{ID: created.Id, Link: created.HtmlLink}, nil
}

// sameEvent reports whether an event found under a reused id is the one w
// describes.
func sameEvent(ev *gcal.Event, w contractx.ScheduleWindow) bool {
	if ev.Summary != w.Summary || ev.Start == nil {
		return false
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	return err == nil && start.Equal(w.Start)
}

// classify maps Calendar API failures onto the contract errors. Anything that
// may have reached the server without a definite answer is ambiguous.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: calendar rejected the credential: %w", contractx.ErrCalendarUnavailable, err)
		case apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: calendar server error: %w", contractx.ErrAmbiguousSideEffect, err)
		case apiErr.Code >= http.StatusBadRequest:
			return fmt.Errorf("%w: calendar rejected the event: %w", contractx.ErrToolFailure, err)
		}
	}
	return fmt.Errorf("%w: %w", contractx.ErrAmbiguousSideEffect, err)
}
