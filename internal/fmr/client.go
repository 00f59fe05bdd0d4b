package fmr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	loadPath       = "/ws/public/data/load"
	loadStatusPath = "/ws/public/data/loadStatus"

	uploadFieldName = "uploadFile"

	defaultPort        = 8080
	httpsPort          = 443
	defaultCSV         = "csv"
	defaultHTTPTimeout = 30 * time.Second
)

// validDelimiters is the set of delimiter names FMR accepts in the
// Data-Format header.
var validDelimiters = map[string]struct{}{
	"comma":     {},
	"semicolon": {},
	"tab":       {},
	"space":     {},
}

// JobHandle is the opaque identifier an FMR instance assigns to one upload.
// It is valid only for the lifetime of a single validation call.
type JobHandle string

// PollBudget bounds the status-polling loop: at most MaxAttempts checks,
// spaced by a fixed Interval. The derived wall-clock timeout is always
// MaxAttempts times Interval.
type PollBudget struct {
	MaxAttempts int
	Interval    time.Duration
}

// Timeout returns the total wall-clock budget.
func (b PollBudget) Timeout() time.Duration {
	return time.Duration(b.MaxAttempts) * b.Interval
}

// Validate rejects non-positive attempt counts or intervals before any I/O.
func (b PollBudget) Validate() error {
	if b.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfiguration, b.MaxAttempts)
	}
	if b.Interval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidConfiguration, b.Interval)
	}
	return nil
}

// Report is the terminal artifact of one validation call. An empty Findings
// sequence means the job completed and the data was clean.
type Report struct {
	UID      string    `json:"uid"`
	Findings []Finding `json:"findings"`
}

// Clean reports whether the validation finished without any findings.
func (r *Report) Clean() bool { return len(r.Findings) == 0 }

// Config holds the connection parameters for one FMR instance.
type Config struct {
	Host      string
	Port      int
	UseHTTPS  bool
	Delimiter string
	Format    string
	Timeout   time.Duration
}

// Client uploads serialized datasets to an FMR instance and polls the load
// status endpoint until the job reaches a terminal state. A Client holds no
// per-call state; independent validation calls may share one instance.
type Client struct {
	baseURL    string
	delimiter  string
	format     string
	classifier *Classifier
	client     *http.Client
}

// NewClient validates the configuration and builds an FMR client. HTTPS on
// the conventional unencrypted port silently upgrades to 443.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfiguration)
	}
	if _, ok := validDelimiters[cfg.Delimiter]; !ok {
		return nil, fmt.Errorf("%w: delimiter must be comma, semicolon, tab or space, got %q",
			ErrInvalidConfiguration, cfg.Delimiter)
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	if cfg.UseHTTPS && port == defaultPort {
		port = httpsPort
	}

	scheme := "http"
	if cfg.UseHTTPS {
		scheme = "https"
	}

	format := cfg.Format
	if format == "" {
		format = defaultCSV
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}

	return &Client{
		baseURL:    fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port),
		delimiter:  cfg.Delimiter,
		format:     format,
		classifier: NewClassifier(DefaultStatusLabels()),
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// NewClientForURL builds a client against a pre-formed base URL. Used by
// tests and by callers fronting FMR with a proxy.
func NewClientForURL(baseURL, delimiter string) (*Client, error) {
	if _, ok := validDelimiters[delimiter]; !ok {
		return nil, fmt.Errorf("%w: delimiter must be comma, semicolon, tab or space, got %q",
			ErrInvalidConfiguration, delimiter)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		delimiter:  delimiter,
		format:     defaultCSV,
		classifier: NewClassifier(DefaultStatusLabels()),
		client:     &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

// BaseURL returns the resolved FMR base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Submit uploads the serialized payload as a file attachment and returns the
// job handle the server assigned. Exactly one POST; rejections are not retried.
func (c *Client) Submit(ctx context.Context, payload string) (JobHandle, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(uploadFieldName, "dataset.csv")
	if err != nil {
		return "", fmt.Errorf("building upload body: %w", err)
	}
	if _, err := io.WriteString(fw, payload); err != nil {
		return "", fmt.Errorf("building upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loadPath, &body)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Data-Format", fmt.Sprintf("%s;delimiter=%s", c.format, c.delimiter))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading dataset: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var loadResp struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(respBody, &loadResp); err != nil {
		return "", fmt.Errorf("%w: decoding upload response: %v", ErrMalformedResponse, err)
	}
	if loadResp.UID == "" {
		return "", fmt.Errorf("%w: upload response has no uid", ErrMalformedResponse)
	}

	return JobHandle(loadResp.UID), nil
}

// Poll repeatedly checks the load status until the job is terminal or the
// budget runs out. Each check is preceded by one full interval of suspension,
// including the very first. Only a terminal status is ever returned; an
// in-progress observation consumes one attempt and loops.
func (c *Client) Poll(ctx context.Context, handle JobHandle, budget PollBudget) (JobStatus, error) {
	if err := budget.Validate(); err != nil {
		return JobStatus{}, err
	}

	start := time.Now()
	timeout := budget.Timeout()

	for attempt := 0; attempt < budget.MaxAttempts; attempt++ {
		if err := sleepCtx(ctx, budget.Interval); err != nil {
			return JobStatus{}, err
		}

		status, err := c.checkStatus(ctx, handle)
		if err != nil {
			return JobStatus{}, err
		}
		if status.State != StateInProgress {
			return status, nil
		}

		if time.Since(start) >= timeout {
			break
		}
	}

	return JobStatus{}, fmt.Errorf("%w: no terminal status within %s (%d attempts at %s)",
		ErrPollTimeout, timeout, budget.MaxAttempts, budget.Interval)
}

// Validate composes Submit, Poll and classification into one call. Failures
// from either stage propagate unchanged; a server-reported terminal error
// surfaces as a RemoteError carrying the full diagnostic payload.
func (c *Client) Validate(ctx context.Context, payload string, budget PollBudget) (*Report, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	handle, err := c.Submit(ctx, payload)
	if err != nil {
		return nil, err
	}

	status, err := c.Poll(ctx, handle, budget)
	if err != nil {
		return nil, err
	}
	if status.State == StateFailed {
		return nil, &RemoteError{Status: status.Substate, Payload: status.Detail}
	}

	findings := status.Findings
	if findings == nil {
		findings = []Finding{}
	}
	return &Report{UID: string(handle), Findings: findings}, nil
}

// checkStatus performs one GET against the status endpoint and classifies
// the response.
func (c *Client) checkStatus(ctx context.Context, handle JobHandle) (JobStatus, error) {
	u := fmt.Sprintf("%s%s?uid=%s", c.baseURL, loadStatusPath, url.QueryEscape(string(handle)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return JobStatus{}, fmt.Errorf("checking load status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobStatus{}, fmt.Errorf("reading status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("%w: status endpoint returned %d", ErrMalformedResponse, resp.StatusCode)
	}

	var sr StatusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return JobStatus{}, fmt.Errorf("%w: decoding status response: %v", ErrMalformedResponse, err)
	}
	sr.Raw = body

	return c.classifier.Classify(sr)
}

// sleepCtx blocks for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
