// Package store is the HTTP client for the two-verb registration endpoint:
// POST appends a row, GET lists registrants.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"iftar-reg/internal/models"
)

const DefaultTimeout = 15 * time.Second

// ErrHTMLResponse means the endpoint answered with a web page instead of
// JSON. Usually a wrong deployment URL or a login wall.
var ErrHTMLResponse = errors.New("store: backend returned HTML")

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store: unexpected status %d", e.Code)
}

// BackendError carries an error the endpoint reported in its JSON body.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return "store: backend error: " + e.Message
}

type Client struct {
	endpoint      string
	http          *http.Client
	timeout       time.Duration
	confirmWrites bool
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Client)

// WithHTTPClient sends requests through hc. The client is never modified;
// a timeout set with WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConfirmWrites controls whether CreateRegistration inspects the
// response. When off, any response at all counts as success.
func WithConfirmWrites(on bool) Option {
	return func(c *Client) { c.confirmWrites = on }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("store: invalid endpoint %q", endpoint)
	}
	c := &Client{
		endpoint:      endpoint,
		confirmWrites: true,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	switch {
	case c.http == nil:
		timeout := c.timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	case c.timeout > 0:
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

type writeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateRegistration appends the record. A transport failure is always an
// error; status and body are only checked when write confirmation is on.
func (c *Client) CreateRegistration(ctx context.Context, rec models.RegistrationRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("store: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store: post registration: %w", err)
	}
	defer resp.Body.Close()

	if !c.confirmWrites {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug("registration sent without confirmation", "student_id", rec.StudentID)
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var wr writeResponse
		if json.NewDecoder(resp.Body).Decode(&wr) == nil && wr.Message != "" {
			return fmt.Errorf("%w: %w", &StatusError{Code: resp.StatusCode}, &BackendError{Message: wr.Message})
		}
		return &StatusError{Code: resp.StatusCode}
	}

	var wr writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil && !errors.Is(err, io.EOF) {
		// Some deployments answer with a redirect page on success; the
		// status already told us the row was accepted.
		c.logger.Warn("unreadable write response", "err", err)
		return nil
	}
	if strings.EqualFold(wr.Status, "error") {
		msg := wr.Message
		if msg == "" {
			msg = "unknown error"
		}
		return &BackendError{Message: msg}
	}
	return nil
}

// ListRegistrations reads all registrants. The request carries a
// cache-busting t parameter.
func (c *Client) ListRegistrations(ctx context.Context) ([]models.RegistrantSummary, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("store: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: list registrations: %w", err)
	}
	defer resp.Body.Close()

	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrHTMLResponse
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store: read body: %w", err)
	}
	return decodeList(raw)
}

func decodeList(raw []byte) ([]models.RegistrantSummary, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []models.RegistrantSummary{}, nil
	}
	switch raw[0] {
	case '[':
		var rows []summaryRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("store: decode list: %w", err)
		}
		out := make([]models.RegistrantSummary, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.summary())
		}
		return out, nil
	case '{':
		var obj struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("store: decode response: %w", err)
		}
		if msg := errorMessage(obj.Error); msg != "" {
			return nil, &BackendError{Message: msg}
		}
		return []models.RegistrantSummary{}, nil
	default:
		return nil, fmt.Errorf("store: unexpected response body")
	}
}

// summaryRow tolerates numbers where strings are expected: a spreadsheet
// hands back student IDs and batches as numbers.
type summaryRow struct {
	Name      json.RawMessage `json:"name"`
	StudentID json.RawMessage `json:"studentId"`
	Batch     json.RawMessage `json:"batch"`
	Dept      json.RawMessage `json:"dept"`
}

func (r summaryRow) summary() models.RegistrantSummary {
	return models.RegistrantSummary{
		Name:      stringify(r.Name),
		StudentID: stringify(r.StudentID),
		Batch:     stringify(r.Batch),
		Dept:      stringify(r.Dept),
	}
}

// errorMessage returns the text of an "error" member, or "" when the value is
// falsy: absent, null, false, 0 or the empty string.
func errorMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", `""`:
		return ""
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil && f == 0 {
		return ""
	}
	return stringify(raw)
}

func stringify(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return string(raw)
}
