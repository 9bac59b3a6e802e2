package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/push"
)

// Mode is the FCM operating mode, selected once at configuration load.
type Mode int

const (
	ModeUnconfigured Mode = iota
	ModeV1
	ModeLegacy
)

const (
	// scopeMessaging restricts the service-account token to messaging only.
	scopeMessaging = "https://www.googleapis.com/auth/firebase.messaging"

	defaultEndpoint = "https://fcm.googleapis.com"
)

var (
	// ErrInvalidCredentials is returned when the service-account JSON
	// cannot be parsed.
	ErrInvalidCredentials = errors.New("fcm: invalid service account credentials")
)

// Client sends notifications through FCM. Safe for concurrent use.
type Client struct {
	mode        Mode
	projectID   string
	serverKey   string
	tokens      oauth2.TokenSource
	endpoint    string
	client      *http.Client
	parallelism int
	logger      *slog.Logger
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

// WithEndpoint overrides the FCM base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTokenSource replaces the OAuth2 token source used in v1 mode.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
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

// New creates an FCM client. Missing credentials do not fail construction:
// the client comes up unconfigured and fails every token locally, so a
// deployment without Android support still routes cleanly.
func New(cfg Config, opts ...Option) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 10
	}

	c := &Client{
		projectID:   cfg.ProjectID,
		serverKey:   cfg.ServerKey,
		endpoint:    defaultEndpoint,
		client:      &http.Client{Timeout: timeout},
		parallelism: parallelism,
		logger:      slog.Default(),
	}

	if cfg.CredentialsJSON != "" {
		jwtCfg, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), scopeMessaging)
		if err != nil {
			return nil, errors.Join(ErrInvalidCredentials, err)
		}
		c.tokens = jwtCfg.TokenSource(context.Background())
	}

	for _, opt := range opts {
		opt(c)
	}

	// Mode is fixed here and never re-examined per call.
	switch {
	case c.tokens != nil && c.projectID != "":
		c.mode = ModeV1
	case c.serverKey != "":
		c.mode = ModeLegacy
	default:
		c.mode = ModeUnconfigured
	}

	return c, nil
}

// Mode reports the operating mode the client was constructed with.
func (c *Client) Mode() Mode { return c.mode }

// Configured implements push.Provider.
func (c *Client) Configured() bool { return c.mode != ModeUnconfigured }

// Send implements push.Provider. Tokens are processed in chunks of at most
// 500; within a chunk sends run with bounded parallelism and settle
// individually, so one token's rejection never aborts the rest.
func (c *Client) Send(ctx context.Context, tokens []string, payload push.Payload) (push.BatchResult, error) {
	if len(tokens) == 0 {
		return push.BatchResult{}, nil
	}
	if !c.Configured() {
		return push.AllFailed(tokens, push.CodeFCMNotConfigured, "fcm credentials are not configured"), nil
	}

	var batch push.BatchResult
	for _, chunk := range push.ChunkTokens(tokens, push.ProviderChunkSize) {
		results := async.SettleAll(ctx, chunk, c.parallelism, func(ctx context.Context, token string) push.Result {
			return c.sendOne(ctx, token, payload)
		})
		for _, res := range results {
			batch.Add(res)
		}
	}

	c.logger.DebugContext(ctx, "fcm batch sent",
		slog.Int("total", batch.TotalDevices),
		slog.Int("delivered", batch.DeliveredTo),
		slog.Int("failed", batch.FailedCount))
	return batch, nil
}

func (c *Client) sendOne(ctx context.Context, token string, payload push.Payload) push.Result {
	if c.mode == ModeV1 {
		return c.sendV1(ctx, token, payload)
	}
	return c.sendLegacy(ctx, token, payload)
}

func (c *Client) sendV1(ctx context.Context, token string, payload push.Payload) push.Result {
	accessToken, err := c.tokens.Token()
	if err != nil {
		return failed(token, push.CodeUnauthorized, err.Error())
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.endpoint, c.projectID)
	status, respBody, err := c.post(ctx, url, "Bearer "+accessToken.AccessToken, map[string]any{
		"message": buildV1Message(token, payload),
	})
	if err != nil {
		return failed(token, push.CodeSendError, err.Error())
	}
	if status == http.StatusOK {
		return push.Result{Success: true, Token: token}
	}
	return failed(token, mapV1Status(status), parseV1Error(respBody))
}

func (c *Client) sendLegacy(ctx context.Context, token string, payload push.Payload) push.Result {
	status, respBody, err := c.post(ctx, c.endpoint+"/fcm/send", "key="+c.serverKey, buildLegacyMessage(token, payload))
	if err != nil {
		return failed(token, push.CodeSendError, err.Error())
	}

	switch {
	case status == http.StatusUnauthorized:
		return failed(token, push.CodeUnauthorized, "server key rejected")
	case status >= http.StatusInternalServerError:
		return failed(token, push.CodeServerError, fmt.Sprintf("fcm returned status %d", status))
	case status != http.StatusOK:
		return failed(token, push.CodeSendError, fmt.Sprintf("fcm returned status %d", status))
	}

	var parsed struct {
		Results []struct {
			MessageID string `json:"message_id"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return failed(token, push.CodeSendError, err.Error())
	}
	if len(parsed.Results) > 0 && parsed.Results[0].Error != "" {
		reason := parsed.Results[0].Error
		return failed(token, mapLegacyReason(reason), reason)
	}
	return push.Result{Success: true, Token: token}
}

func (c *Client) post(ctx context.Context, url, authorization string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// mapV1Status translates FCM v1 HTTP status codes into the closed taxonomy.
func mapV1Status(status int) push.Code {
	switch {
	case status == http.StatusBadRequest:
		return push.CodeBadRequest
	case status == http.StatusUnauthorized:
		return push.CodeUnauthorized
	case status == http.StatusForbidden:
		return push.CodeForbidden
	case status == http.StatusNotFound:
		return push.CodeInvalidToken
	case status == http.StatusTooManyRequests:
		return push.CodeTooManyRequests
	case status >= http.StatusInternalServerError:
		return push.CodeServerError
	default:
		return push.CodeUnknownError
	}
}

// mapLegacyReason translates legacy textual reasons. Unknown reasons map to
// the transient send_error rather than guessing permanence.
func mapLegacyReason(reason string) push.Code {
	switch reason {
	case "InvalidRegistration":
		return push.CodeInvalidToken
	case "NotRegistered":
		return push.CodeUnregisteredToken
	case "MismatchSenderId":
		return push.CodeForbidden
	case "InvalidPackageName":
		return push.CodeBadRequest
	default:
		return push.CodeSendError
	}
}

func parseV1Error(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return parsed.Error.Status
}

func failed(token string, code push.Code, message string) push.Result {
	return push.Result{
		Token: token,
		Error: &push.Error{Code: code, Message: message},
	}
}
