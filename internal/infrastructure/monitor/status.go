package monitor

import "time"

// Status is the last observed reachability of each dependency. Components
// that were not configured report false.
type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      bool      `json:"redis"`
	Gateway    bool      `json:"gateway"`
	Outbox     bool      `json:"outbox"`
	OutboxSize int       `json:"outbox_size"`
	LastCheck  time.Time `json:"last_check"`
}
