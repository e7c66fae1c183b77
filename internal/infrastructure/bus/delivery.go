package bus

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/fastygo/taskstream/domain"
)

// Delivery is the answer a subscriber gives the gateway for one message.
type Delivery string

const (
	// Success acknowledges the message.
	Success Delivery = "SUCCESS"
	// Drop acknowledges a message that can never be processed.
	Drop Delivery = "DROP"
	// Retry asks the gateway to redeliver later.
	Retry Delivery = "RETRY"
)

// StatusCode maps the delivery onto HTTP: 2xx acknowledges, anything else
// is read by the gateway as "retry later".
func (d Delivery) StatusCode() int {
	if d == Retry {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// DeliveryFor classifies a processing error.
func DeliveryFor(err error) Delivery {
	switch {
	case err == nil:
		return Success
	case domain.IsRetryable(err):
		return Retry
	default:
		return Drop
	}
}

// Subscription is one entry of the programmatic subscription list.
type Subscription struct {
	PubsubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// Unwrap extracts the event payload from a delivery body. A cloud-event
// wrapper carries it under "data"; otherwise the body is the payload.
func Unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, domain.ErrMalformedEnvelope
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		// Valid JSON that is not an object, e.g. an array.
		return nil, domain.WrapError(domain.ErrCodeValidation, "unexpected payload shape", err)
	}

	data := bytes.TrimSpace(wrapper.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return json.RawMessage(body), nil
	case data[0] == '{':
		return json.RawMessage(data), nil
	case data[0] == '"':
		// Some publishers stringify the payload.
		var inner string
		if err := json.Unmarshal(data, &inner); err == nil {
			if trimmed := bytes.TrimSpace([]byte(inner)); len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
				return json.RawMessage(trimmed), nil
			}
		}
	}
	return json.RawMessage(body), nil
}
