package pgnotify

import (
	"encoding/json"

	"github.com/dmitrymomot/livesync/core/channel"
)

// maxPayload is the Postgres NOTIFY payload limit in bytes.
const maxPayload = 7999

// Payload is the JSON body of a change notification.
type Payload struct {
	Table  string            `json:"table"`
	Type   channel.Operation `json:"type"`
	Keys   []string          `json:"keys,omitempty"`
	Record map[string]any    `json:"record,omitempty"`
}

func decodePayload(s string) (Payload, error) {
	var p Payload
	err := json.Unmarshal([]byte(s), &p)
	return p, err
}
