package push

import "fmt"

// Priority selects the provider-side delivery urgency.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Payload is the platform-neutral notification content. Providers map it to
// their own wire structure (APNs alert dictionary, FCM message object).
type Payload struct {
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
	Badge       *int           `json:"badge,omitempty"`
	Sound       string         `json:"sound,omitempty"`
	Priority    Priority       `json:"priority,omitempty"`
	CollapseKey string         `json:"collapse_key,omitempty"`
}

// Code is a provider-neutral failure code. The set is closed: providers map
// their own status codes and reason strings onto it at the response boundary.
type Code string

const (
	CodeBadRequest        Code = "bad_request"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeMethodNotAllowed  Code = "method_not_allowed"
	CodeUnregisteredToken Code = "unregistered_token"
	CodeInvalidToken      Code = "invalid_token"
	CodePayloadTooLarge   Code = "payload_too_large"
	CodeTooManyRequests   Code = "too_many_requests"
	CodeServerError       Code = "server_error"
	CodeUnknownError      Code = "unknown_error"
	CodeBatchError        Code = "batch_error"
	CodeSendError         Code = "send_error"
	CodeNotConfigured     Code = "not_configured"
	CodeAPNSNotConfigured Code = "apns_not_configured"
	CodeFCMNotConfigured  Code = "fcm_not_configured"
)

// Permanent reports whether the code invalidates the device token itself.
// Only permanent codes cause a token to be purged from the device registry.
func (c Code) Permanent() bool {
	switch c {
	case CodeUnregisteredToken, CodeInvalidToken:
		return true
	default:
		return false
	}
}

// Retryable reports whether the failure is transient and a queue-level retry
// of the whole job may succeed.
func (c Code) Retryable() bool {
	switch c {
	case CodeServerError, CodeTooManyRequests, CodeBatchError, CodeSendError:
		return true
	default:
		return false
	}
}

// Error carries a failure code and the provider's message for one token.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is the delivery outcome for a single token.
type Result struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Error   *Error `json:"error,omitempty"`
}

// BatchResult aggregates per-token outcomes of one send.
// Invariants: DeliveredTo + FailedCount == TotalDevices, and InvalidTokens is
// a subset of the tokens of failed results.
type BatchResult struct {
	DeliveredTo   int      `json:"delivered_to"`
	FailedCount   int      `json:"failed_count"`
	TotalDevices  int      `json:"total_devices"`
	InvalidTokens []string `json:"invalid_tokens,omitempty"`
	Results       []Result `json:"results,omitempty"`
}

// Add records one per-token result, maintaining the aggregate counters and
// collecting tokens whose failure code is permanent.
func (b *BatchResult) Add(res Result) {
	b.TotalDevices++
	if res.Success {
		b.DeliveredTo++
	} else {
		b.FailedCount++
		if res.Error != nil && res.Error.Code.Permanent() {
			b.InvalidTokens = append(b.InvalidTokens, res.Token)
		}
	}
	b.Results = append(b.Results, res)
}

// Merge folds another batch into this one additively. Counters, invalid
// tokens and per-token results are concatenated, not re-validated.
func (b *BatchResult) Merge(other BatchResult) {
	b.DeliveredTo += other.DeliveredTo
	b.FailedCount += other.FailedCount
	b.TotalDevices += other.TotalDevices
	b.InvalidTokens = append(b.InvalidTokens, other.InvalidTokens...)
	b.Results = append(b.Results, other.Results...)
}

// AllFailed builds a batch where every token failed with the given code.
// Used for unconfigured providers and chunk-level transport errors.
func AllFailed(tokens []string, code Code, message string) BatchResult {
	var batch BatchResult
	for _, token := range tokens {
		batch.Add(Result{
			Token: token,
			Error: &Error{Code: code, Message: message},
		})
	}
	return batch
}
