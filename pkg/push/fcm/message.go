package fcm

import (
	"fmt"
	"strconv"

	"github.com/dmitrymomot/notifykit/pkg/push"
)

// buildV1Message maps the neutral payload into the v1 message object.
// The android and apns hint blocks are attached regardless of mode so a
// token migrated between API generations behaves identically.
func buildV1Message(token string, payload push.Payload) map[string]any {
	android := map[string]any{
		"priority": androidPriority(payload.Priority),
	}
	if payload.CollapseKey != "" {
		android["collapse_key"] = payload.CollapseKey
	}

	aps := map[string]any{}
	if payload.Badge != nil {
		aps["badge"] = *payload.Badge
	}
	if payload.Sound != "" {
		aps["sound"] = payload.Sound
	}

	apnsHeaders := map[string]any{
		"apns-priority": apnsPriority(payload.Priority),
	}
	if payload.CollapseKey != "" {
		apnsHeaders["apns-collapse-id"] = payload.CollapseKey
	}

	msg := map[string]any{
		"token": token,
		"notification": map[string]any{
			"title": payload.Title,
			"body":  payload.Body,
		},
		"android": android,
		"apns": map[string]any{
			"headers": apnsHeaders,
			"payload": map[string]any{"aps": aps},
		},
	}
	if len(payload.Data) > 0 {
		msg["data"] = stringifyData(payload.Data)
	}
	return msg
}

// buildLegacyMessage maps the neutral payload into the legacy send body.
func buildLegacyMessage(token string, payload push.Payload) map[string]any {
	notification := map[string]any{
		"title": payload.Title,
		"body":  payload.Body,
	}
	if payload.Badge != nil {
		notification["badge"] = strconv.Itoa(*payload.Badge)
	}
	if payload.Sound != "" {
		notification["sound"] = payload.Sound
	}

	msg := map[string]any{
		"to":           token,
		"notification": notification,
		"priority":     legacyPriority(payload.Priority),
	}
	if payload.CollapseKey != "" {
		msg["collapse_key"] = payload.CollapseKey
	}
	if len(payload.Data) > 0 {
		msg["data"] = stringifyData(payload.Data)
	}
	return msg
}

// stringifyData coerces data values to strings; FCM rejects non-string
// data values in both API generations.
func stringifyData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch v := v.(type) {
		case string:
			out[k] = v
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func androidPriority(p push.Priority) string {
	if p == push.PriorityNormal {
		return "NORMAL"
	}
	return "HIGH"
}

func apnsPriority(p push.Priority) string {
	if p == push.PriorityNormal {
		return "5"
	}
	return "10"
}

func legacyPriority(p push.Priority) string {
	if p == push.PriorityNormal {
		return "normal"
	}
	return "high"
}
