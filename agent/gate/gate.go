package gate

import (
	"crypto/subtle"
	"fmt"
	"net/mail"
	"strings"
	"time"
	_ "time/tzdata"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

const DefaultTimeZone = "UTC"

// localLayouts are accepted when a timestamp carries no offset; it is then
// read in the request's time zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Authenticate compares the presented shared secret in constant time.
func Authenticate(presented, expected string) error {
	if strings.TrimSpace(expected) == "" {
		return fmt.Errorf("%w: server secret is not configured", contractx.ErrAuth)
	}
	if presented == "" {
		return fmt.Errorf("%w: missing api key", contractx.ErrAuth)
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		return fmt.Errorf("%w: invalid api key", contractx.ErrAuth)
	}
	return nil
}

func ValidateChat(req contractx.ChatRequest) error {
	if len(req.Turns) == 0 {
		return fmt.Errorf("%w: chatContext must contain at least one message", contractx.ErrValidation)
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return fmt.Errorf("%w: systemPrompt is required", contractx.ErrValidation)
	}
	return nil
}

// ValidateSchedule parses and checks a scheduling request.
func ValidateSchedule(req contractx.ScheduleRequest) (contractx.ScheduleWindow, error) {
	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		return contractx.ScheduleWindow{}, fmt.Errorf("%w: summary is required", contractx.ErrValidation)
	}
	if len(req.Attendees) == 0 {
		return contractx.ScheduleWindow{}, fmt.Errorf("%w: at least one attendee is required", contractx.ErrValidation)
	}

	attendees := make([]string, 0, len(req.Attendees))
	seen := make(map[string]bool, len(req.Attendees))
	for i, a := range req.Attendees {
		addr, err := mail.ParseAddress(strings.TrimSpace(a))
		if err != nil {
			return contractx.ScheduleWindow{}, fmt.Errorf("%w: attendees[%d] is not an email address: %q", contractx.ErrValidation, i, a)
		}
		key := strings.ToLower(addr.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		attendees = append(attendees, addr.Address)
	}

	tzName := strings.TrimSpace(req.TimeZone)
	if tzName == "" {
		tzName = DefaultTimeZone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return contractx.ScheduleWindow{}, fmt.Errorf("%w: unknown timeZone %q", contractx.ErrValidation, tzName)
	}

	start, err := parseTime("startTime", req.StartTime, loc)
	if err != nil {
		return contractx.ScheduleWindow{}, err
	}
	end, err := parseTime("endTime", req.EndTime, loc)
	if err != nil {
		return contractx.ScheduleWindow{}, err
	}
	if !start.Before(end) {
		return contractx.ScheduleWindow{}, fmt.Errorf("%w: endTime must be after startTime", contractx.ErrValidation)
	}

	return contractx.ScheduleWindow{
		Summary:     summary,
		Description: strings.TrimSpace(req.Description),
		Attendees:   attendees,
		Start:       start,
		End:         end,
		TimeZone:    tzName,
	}, nil
}

func parseTime(field, raw string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", contractx.ErrValidation, field)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s is not an ISO-8601 timestamp: %q", contractx.ErrValidation, field, raw)
}
