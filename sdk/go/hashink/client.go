// Package hashink is the Go client for the request ledger HTTP API.
package hashink

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const APIVersion = "v1"

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Error carries the server's error envelope. ErrorCode is the stable
// domain code (STILL_LOCKED, NOT_OWNER, ...) when the failure is a
// domain one.
type Error struct {
	StatusCode int
	ErrorCode  string
	Message    string
	RequestID  string
	Details    map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("hashink sdk error: status=%d code=%s message=%s", e.StatusCode, e.ErrorCode, e.Message)
}

type Request struct {
	ID         uint64    `json:"id"`
	Requester  string    `json:"requester"`
	Recipients []string  `json:"recipients"`
	Amount     uint64    `json:"amount"`
	Deadline   time.Time `json:"deadline"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type Artifact struct {
	ID          uint64    `json:"id"`
	Owner       string    `json:"owner"`
	Creators    []string  `json:"creators"`
	ContentRef  string    `json:"content_ref"`
	MetadataRef string    `json:"metadata_ref"`
	MintedAt    time.Time `json:"minted_at"`
}

type Stats struct {
	Balance        uint64 `json:"balance"`
	TotalRequests  uint64 `json:"total_requests"`
	Pending        uint64 `json:"pending"`
	TotalArtifacts uint64 `json:"total_artifacts"`
}

type Balances struct {
	Account          string `json:"account"`
	RequesterBalance uint64 `json:"requester_balance"`
	RecipientBalance uint64 `json:"recipient_balance"`
	BankBalance      uint64 `json:"bank_balance"`
}

type FeeConfig struct {
	FeePercent uint64 `json:"fee_percent"`
	Treasury   string `json:"treasury"`
}

type Celebrity struct {
	Account        string        `json:"account"`
	Name           string        `json:"name"`
	Price          uint64        `json:"price"`
	ResponseWindow time.Duration `json:"response_window"`
	CreatedAt      time.Time     `json:"created_at"`
}

type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

type CreateRequestParams struct {
	Requester             string
	Recipients            []string
	Amount                uint64
	ResponseWindowSeconds int64
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	if c.retry.BaseDelay <= 0 {
		c.retry.BaseDelay = 200 * time.Millisecond
	}
	if c.retry.MaxDelay <= 0 {
		c.retry.MaxDelay = 5 * time.Second
	}
	return c
}

func (c *Client) CreateRequest(ctx context.Context, p CreateRequestParams) (*Request, error) {
	body := map[string]any{
		"requester":               p.Requester,
		"recipients":              p.Recipients,
		"amount":                  p.Amount,
		"response_window_seconds": p.ResponseWindowSeconds,
	}
	payload, err := c.do(ctx, http.MethodPost, "/v1/requests", body, false)
	if err != nil {
		return nil, err
	}
	return parseRequest(payload, "request")
}

func (c *Client) GetRequest(ctx context.Context, id uint64) (*Request, bool, error) {
	payload, err := c.do(ctx, http.MethodGet, "/v1/requests/"+formatID(id), nil, true)
	if err != nil {
		return nil, false, err
	}
	req, err := parseRequest(payload, "request")
	if err != nil {
		return nil, false, err
	}
	locked, _ := payload["locked"].(bool)
	return req, locked, nil
}

func (c *Client) CancelRequest(ctx context.Context, id uint64, caller string) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/requests/"+formatID(id)+":cancel", map[string]any{"caller": caller}, false)
	return err
}

func (c *Client) FinalizeRequest(ctx context.Context, id uint64, caller, contentRef, metadataRef string) (uint64, error) {
	body := map[string]any{"caller": caller, "content_ref": contentRef, "metadata_ref": metadataRef}
	payload, err := c.do(ctx, http.MethodPost, "/v1/requests/"+formatID(id)+":finalize", body, false)
	if err != nil {
		return 0, err
	}
	return uintField(payload, "artifact_id")
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	payload, err := c.do(ctx, http.MethodGet, "/v1/stats", nil, true)
	if err != nil {
		return nil, err
	}
	var out Stats
	if err := reparse(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Balances(ctx context.Context, account string) (*Balances, error) {
	payload, err := c.do(ctx, http.MethodGet, "/v1/balances/"+url.PathEscape(account), nil, true)
	if err != nil {
		return nil, err
	}
	var out Balances
	if err := reparse(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Fees(ctx context.Context) (*FeeConfig, error) {
	payload, err := c.do(ctx, http.MethodGet, "/v1/fees", nil, true)
	if err != nil {
		return nil, err
	}
	var out FeeConfig
	if err := reparse(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetFeePercent(ctx context.Context, value uint64, caller string) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/fees/percent", map[string]any{"value": value, "caller": caller}, false)
	return err
}

func (c *Client) SetTreasury(ctx context.Context, account, caller string) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/fees/treasury", map[string]any{"account": account, "caller": caller}, false)
	return err
}

func (c *Client) GetArtifact(ctx context.Context, id uint64) (*Artifact, string, error) {
	payload, err := c.do(ctx, http.MethodGet, "/v1/artifacts/"+formatID(id), nil, true)
	if err != nil {
		return nil, "", err
	}
	raw, ok := payload["artifact"].(map[string]any)
	if !ok {
		return nil, "", errors.New("response has no artifact object")
	}
	var out Artifact
	if err := reparse(raw, &out); err != nil {
		return nil, "", err
	}
	approved, _ := payload["approved"].(string)
	return &out, approved, nil
}

func (c *Client) TransferArtifact(ctx context.Context, id uint64, from, to, caller string) error {
	body := map[string]any{"from": from, "to": to, "caller": caller}
	_, err := c.do(ctx, http.MethodPost, "/v1/artifacts/"+formatID(id)+":transfer", body, false)
	return err
}

func (c *Client) ApproveArtifact(ctx context.Context, id uint64, approved, caller string) error {
	body := map[string]any{"approved": approved, "caller": caller}
	_, err := c.do(ctx, http.MethodPost, "/v1/artifacts/"+formatID(id)+":approve", body, false)
	return err
}

func (c *Client) CreateCelebrity(ctx context.Context, cel Celebrity) error {
	body := map[string]any{
		"account":                 cel.Account,
		"name":                    cel.Name,
		"price":                   cel.Price,
		"response_window_seconds": int64(cel.ResponseWindow / time.Second),
	}
	_, err := c.do(ctx, http.MethodPost, "/v1/celebrities", body, false)
	return err
}

func (c *Client) GetCelebrity(ctx context.Context, account string) (*Celebrity, error) {
	payload, err := c.do(ctx, http.MethodGet, "/v1/celebrities/"+url.PathEscape(account), nil, true)
	if err != nil {
		return nil, err
	}
	raw, ok := payload["celebrity"].(map[string]any)
	if !ok {
		return nil, errors.New("response has no celebrity object")
	}
	var out Celebrity
	if err := reparse(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Events(ctx context.Context) ([]Event, string, error) {
	payload, err := c.do(ctx, http.MethodGet, "/v1/events", nil, true)
	if err != nil {
		return nil, "", err
	}
	hash, _ := payload["receipt_hash"].(string)
	rawEvents, _ := payload["events"].([]any)
	events := make([]Event, 0, len(rawEvents))
	for _, raw := range rawEvents {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var e Event
		if err := reparse(obj, &e); err != nil {
			return nil, "", err
		}
		events = append(events, e)
	}
	return events, hash, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, retryable bool) (map[string]any, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}
	attempts := 1
	if retryable {
		attempts = c.retry.MaxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "hashink-go-sdk/0.1.0 (api:"+APIVersion+")")
		if len(bodyBytes) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < attempts {
				sleepWithBackoff(c.retry, attempt, "")
				continue
			}
			return nil, err
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var obj map[string]any
			if len(respBody) == 0 {
				return map[string]any{}, nil
			}
			if err := json.Unmarshal(respBody, &obj); err != nil {
				return nil, err
			}
			return obj, nil
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts {
			sleepWithBackoff(c.retry, attempt, resp.Header.Get("Retry-After"))
			continue
		}
		return nil, parseSDKError(resp.StatusCode, respBody)
	}
	return nil, errors.New("unreachable")
}

func shouldRetryStatus(status int) bool {
	return status == 429 || status == 502 || status == 503 || status == 504
}

func sleepWithBackoff(cfg RetryConfig, attempt int, retryAfter string) {
	if strings.TrimSpace(retryAfter) != "" {
		if sec, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil {
			d := time.Duration(sec) * time.Second
			if d > cfg.MaxDelay {
				d = cfg.MaxDelay
			}
			time.Sleep(d)
			return
		}
	}
	max := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max > float64(cfg.MaxDelay) {
		max = float64(cfg.MaxDelay)
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	time.Sleep(time.Duration(n.Int64()))
}

func parseSDKError(status int, body []byte) error {
	out := &Error{StatusCode: status}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = http.StatusText(status)
		}
		return out
	}
	out.RequestID, _ = obj["request_id"].(string)
	if inner, ok := obj["error"].(map[string]any); ok {
		obj = inner
	}
	out.ErrorCode, _ = obj["code"].(string)
	out.Message, _ = obj["message"].(string)
	if d, ok := obj["details"].(map[string]any); ok {
		out.Details = d
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}

func parseRequest(payload map[string]any, key string) (*Request, error) {
	raw, ok := payload[key].(map[string]any)
	if !ok {
		return nil, errors.New("response has no " + key + " object")
	}
	var out Request
	if err := reparse(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// reparse round-trips a decoded map into a typed struct.
func reparse(raw any, dst any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func uintField(payload map[string]any, key string) (uint64, error) {
	v, ok := payload[key].(float64)
	if !ok {
		return 0, errors.New("response has no " + key + " field")
	}
	return uint64(v), nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
