package outbox

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority orders the drain. Lower bands go out first.
type Priority uint8

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 3
	PriorityLow    Priority = 5
)

func (p Priority) valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// Item is an envelope that could not be handed to the gateway. Data is the
// exact JSON body that failed to publish.
type Item struct {
	ID       string          `json:"id"`
	Topic    string          `json:"topic"`
	Data     json.RawMessage `json:"data"`
	Priority Priority        `json:"priority"`
	Attempts int             `json:"attempts"`

	// SpooledAt is set once and drives expiry. QueuedAt moves on every retry
	// and orders items inside a band.
	SpooledAt time.Time `json:"spooled_at"`
	QueuedAt  time.Time `json:"queued_at"`
}

func (i *Item) prepare(now time.Time) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if !i.Priority.valid() {
		i.Priority = PriorityNormal
	}
	if i.SpooledAt.IsZero() {
		i.SpooledAt = now
	}
	if i.QueuedAt.IsZero() {
		i.QueuedAt = i.SpooledAt
	}
}

// key is band, then queue time, then id. Big-endian keeps bbolt's byte order
// equal to drain order.
func (i Item) key() []byte {
	k := make([]byte, 0, 9+len(i.ID))
	k = append(k, byte(i.Priority))
	k = binary.BigEndian.AppendUint64(k, uint64(i.QueuedAt.UnixNano()))
	return append(k, i.ID...)
}
