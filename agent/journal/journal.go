package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

var ErrInvalidEntry = errors.New("journal entry needs request id, call id and outcome")

const (
	defaultKeyPrefix     = "theo:effect:"
	defaultTTL           = 7 * 24 * time.Hour
	maxResponseSizeBytes = 1 << 20
)

// Config enables the Upstash journal when URL and Token are set.
type Config struct {
	URL     string        `envconfig:"URL"`
	Token   string        `envconfig:"TOKEN"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
	TTL     time.Duration `envconfig:"TTL" default:"168h"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Token) != ""
}

// New returns the Upstash journal when configured, otherwise a journal that
// only writes structured log lines.
func New(cfg Config, opts ...Option) (contractx.Journal, error) {
	if !cfg.Enabled() {
		return LogJournal{}, nil
	}
	return NewUpstash(cfg, opts...)
}

type Option func(*Upstash)

func WithKeyPrefix(prefix string) Option {
	return func(u *Upstash) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			u.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(u *Upstash) {
		if client != nil {
			u.httpClient = client
		}
	}
}

// Upstash stores one record per side-effecting call outcome in Upstash Redis
// through its REST API. Later outcomes for the same call overwrite earlier ones.
type Upstash struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var _ contractx.Journal = (*Upstash)(nil)

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstash(cfg Config, opts ...Option) (*Upstash, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid upstash rest url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	u := &Upstash{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultKeyPrefix,
		ttl:        ttl,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u, nil
}

func (u *Upstash) Record(ctx context.Context, entry contractx.JournalEntry) error {
	key, err := u.key(entry)
	if err != nil {
		return err
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if u.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(u.ttl))
	}
	_, err = u.exec(ctx, cmd)
	return err
}

// Lookup returns the last recorded outcome for a call, if any.
func (u *Upstash) Lookup(ctx context.Context, requestID, callID string) (*contractx.JournalEntry, bool, error) {
	key, err := u.key(contractx.JournalEntry{RequestID: requestID, CallID: callID, Outcome: contractx.OutcomeDispatched})
	if err != nil {
		return nil, false, err
	}
	resp, err := u.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, false, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, false, nil
	}
	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, false, fmt.Errorf("decode journal payload: %w", err)
	}
	var entry contractx.JournalEntry
	if err := json.Unmarshal([]byte(encoded), &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal journal entry: %w", err)
	}
	return &entry, true, nil
}

func (u *Upstash) key(entry contractx.JournalEntry) (string, error) {
	if strings.TrimSpace(entry.RequestID) == "" || strings.TrimSpace(entry.CallID) == "" || entry.Outcome == "" {
		return "", ErrInvalidEntry
	}
	return u.keyPrefix + entry.RequestID + ":" + entry.CallID, nil
}

func (u *Upstash) exec(ctx context.Context, command []any) (*restResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed restResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

// LogJournal writes outcomes to the request logger only.
type LogJournal struct{}

func (LogJournal) Record(ctx context.Context, entry contractx.JournalEntry) error {
	level := zerolog.InfoLevel
	if entry.Outcome == contractx.OutcomeAmbiguous || entry.Outcome == contractx.OutcomeFailed {
		level = zerolog.WarnLevel
	}
	log.Ctx(ctx).WithLevel(level).
		Str("request_id", entry.RequestID).
		Str("call_id", entry.CallID).
		Str("tool", entry.Tool).
		Str("event_id", entry.EventID).
		Str("outcome", string(entry.Outcome)).
		Str("error", entry.Error).
		Msg("side effect")
	return nil
}
