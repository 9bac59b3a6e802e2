package apns

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/http2"

	"github.com/dmitrymomot/notifykit/pkg/push"
)

const (
	// HostProduction is the default APNs endpoint.
	HostProduction = "https://api.push.apple.com"
	// HostDevelopment is the APNs sandbox endpoint.
	HostDevelopment = "https://api.sandbox.push.apple.com"
)

var (
	// ErrInvalidPrivateKey is returned when the configured key is not a
	// parseable ES256 private key.
	ErrInvalidPrivateKey = errors.New("apns: invalid private key")
)

// Client sends notifications through APNs. Safe for concurrent use.
type Client struct {
	keyID  string
	teamID string
	topic  string
	key    *ecdsa.PrivateKey
	host   string
	client *http.Client
	logger *slog.Logger
	bearer *providerToken
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. for tests or proxies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithHost overrides the APNs host.
func WithHost(host string) Option {
	return func(c *Client) {
		if host != "" {
			c.host = host
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an APNs client. Missing credentials do not fail construction:
// the client comes up unconfigured and fails every token locally, so a
// deployment without iOS support still routes cleanly.
func New(cfg Config, opts ...Option) (*Client, error) {
	host := HostProduction
	if cfg.Development {
		host = HostDevelopment
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		keyID:  cfg.KeyID,
		teamID: cfg.TeamID,
		topic:  cfg.Topic,
		host:   host,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http2.Transport{},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.KeyID == "" || cfg.TeamID == "" || cfg.PrivateKey == "" {
		return c, nil
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, errors.Join(ErrInvalidPrivateKey, err)
	}
	c.key = key
	c.bearer = newProviderToken(cfg.KeyID, cfg.TeamID, key)
	return c, nil
}

// Configured implements push.Provider.
func (c *Client) Configured() bool {
	return c.key != nil
}

// Send implements push.Provider. Tokens are processed in chunks of at most
// 500; a chunk-level failure (such as provider-token signing) fails every
// token in that chunk with push.CodeBatchError and later chunks are still
// attempted.
func (c *Client) Send(ctx context.Context, tokens []string, payload push.Payload) (push.BatchResult, error) {
	if len(tokens) == 0 {
		return push.BatchResult{}, nil
	}
	if !c.Configured() {
		return push.AllFailed(tokens, push.CodeAPNSNotConfigured, "apns credentials are not configured"), nil
	}

	body, err := json.Marshal(buildBody(payload))
	if err != nil {
		return push.BatchResult{}, err
	}

	var batch push.BatchResult
	for _, chunk := range push.ChunkTokens(tokens, push.ProviderChunkSize) {
		batch.Merge(c.sendChunk(ctx, chunk, payload, body))
	}

	c.logger.DebugContext(ctx, "apns batch sent",
		slog.Int("total", batch.TotalDevices),
		slog.Int("delivered", batch.DeliveredTo),
		slog.Int("failed", batch.FailedCount))
	return batch, nil
}

func (c *Client) sendChunk(ctx context.Context, chunk []string, payload push.Payload, body []byte) push.BatchResult {
	bearer, err := c.bearer.Bearer()
	if err != nil {
		return push.AllFailed(chunk, push.CodeBatchError, err.Error())
	}

	var batch push.BatchResult
	for _, token := range chunk {
		batch.Add(c.sendOne(ctx, token, bearer, payload, body))
	}
	return batch
}

func (c *Client) sendOne(ctx context.Context, token, bearer string, payload push.Payload, body []byte) push.Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/3/device/"+token, bytes.NewReader(body))
	if err != nil {
		return failed(token, push.CodeBatchError, err.Error())
	}

	req.Header.Set("authorization", "bearer "+bearer)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", apnsPriority(payload.Priority))
	if c.topic != "" {
		req.Header.Set("apns-topic", c.topic)
	}
	if payload.CollapseKey != "" {
		req.Header.Set("apns-collapse-id", payload.CollapseKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return failed(token, push.CodeBatchError, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return push.Result{Success: true, Token: token}
	}

	reason := parseReason(resp.Body)
	return failed(token, mapStatus(resp.StatusCode), reason)
}

// buildBody maps the neutral payload into the APNs JSON structure: the aps
// dictionary plus custom data keys at the top level.
func buildBody(payload push.Payload) map[string]any {
	aps := map[string]any{
		"alert": map[string]any{
			"title": payload.Title,
			"body":  payload.Body,
		},
	}
	if payload.Badge != nil {
		aps["badge"] = *payload.Badge
	}
	if payload.Sound != "" {
		aps["sound"] = payload.Sound
	}

	body := map[string]any{"aps": aps}
	for k, v := range payload.Data {
		if k == "aps" {
			continue
		}
		body[k] = v
	}
	return body
}

func apnsPriority(p push.Priority) string {
	if p == push.PriorityNormal {
		return "5"
	}
	return "10"
}

// mapStatus translates APNs HTTP status codes into the closed taxonomy.
func mapStatus(status int) push.Code {
	switch status {
	case http.StatusBadRequest:
		return push.CodeBadRequest
	case http.StatusForbidden:
		return push.CodeForbidden
	case http.StatusMethodNotAllowed:
		return push.CodeMethodNotAllowed
	case http.StatusGone:
		return push.CodeUnregisteredToken
	case http.StatusRequestEntityTooLarge:
		return push.CodePayloadTooLarge
	case http.StatusTooManyRequests:
		return push.CodeTooManyRequests
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return push.CodeServerError
	default:
		return push.CodeUnknownError
	}
}

func parseReason(r io.Reader) string {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}
	return body.Reason
}

func failed(token string, code push.Code, message string) push.Result {
	return push.Result{
		Token: token,
		Error: &push.Error{Code: code, Message: message},
	}
}
