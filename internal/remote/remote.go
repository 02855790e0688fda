package remote

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
	"strings"
	"time"
)

// ErrSessionExpired matches a 408 from the question service, which it uses
// to signal that the session id is unknown.
var ErrSessionExpired = errors.New("session expired")

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is lets errors.Is(err, ErrSessionExpired) match 408 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrSessionExpired && e.StatusCode == http.StatusRequestTimeout
}

// Question is a question entry as served in JSON mode.
type Question struct {
	Word        string         `json:"word"`
	Translation string         `json:"translation"`
	Examples    [][]string     `json:"examples"`
	Metadata    map[string]any `json:"metadata"`
	Mode        string         `json:"mode"`
}

// AnswerScore is the server's assessment of a typed answer.
type AnswerScore struct {
	ScoreString string  `json:"score_string"`
	Score       float64 `json:"score"`
}

// DefaultTimeout bounds every request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Client talks to the question service.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// Resolve turns a service-relative target such as "/next_question?..." into
// an absolute URL.
func (c *Client) Resolve(target string) string {
	ref, err := url.Parse(target)
	if err != nil {
		return c.base.String() + strings.TrimLeft(target, "/")
	}
	if strings.HasPrefix(ref.Path, "/") {
		ref.Path = strings.TrimPrefix(ref.Path, "/")
	}
	return c.base.ResolveReference(ref).String()
}

// Init posts the serialized score ledger and returns the new session id.
// The ledger travels as a JSON string whose content is the ledger JSON.
func (c *Client) Init(ctx context.Context, ledger string) (string, error) {
	body, err := json.Marshal(ledger)
	if err != nil {
		return "", fmt.Errorf("encode init body: %w", err)
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/init", body, &resp); err != nil {
		return "", fmt.Errorf("init session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("init session: empty session id in response")
	}
	return resp.SessionID, nil
}

// Probe issues a GET to target and discards the body. It fails with a
// *StatusError for any non-2xx/3xx status.
func (c *Client) Probe(ctx context.Context, target string) error {
	if err := c.do(ctx, http.MethodGet, target, nil, nil); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return nil
}

// NextQuestion fetches the question a navigation target would show, in JSON.
func (c *Client) NextQuestion(ctx context.Context, target string) (Question, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return Question{}, fmt.Errorf("parse target: %w", err)
	}
	q := ref.Query()
	q.Set("mode", "json")
	ref.RawQuery = q.Encode()

	var resp struct {
		NextQuestion Question `json:"next_question"`
	}
	if err := c.do(ctx, http.MethodGet, ref.String(), nil, &resp); err != nil {
		return Question{}, fmt.Errorf("next question: %w", err)
	}
	return resp.NextQuestion, nil
}

// ScoreAnswer asks the service to score answer against the expected translation.
func (c *Client) ScoreAnswer(ctx context.Context, answer, translation string) (AnswerScore, error) {
	q := url.Values{}
	q.Set("answer", answer)
	q.Set("translation", translation)
	var resp AnswerScore
	if err := c.do(ctx, http.MethodGet, "/answer_score?"+q.Encode(), nil, &resp); err != nil {
		return AnswerScore{}, fmt.Errorf("score answer: %w", err)
	}
	return resp, nil
}

// ListWords returns the words known to the service.
func (c *Client) ListWords(ctx context.Context) ([]string, error) {
	var words []string
	if err := c.do(ctx, http.MethodGet, "/list", nil, &words); err != nil {
		return nil, fmt.Errorf("list words: %w", err)
	}
	return words, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	u := c.Resolve(target)
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if out != nil {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	slog.Debug("service response", "method", method, "url", u, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     method,
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", u, err)
	}
	return nil
}
