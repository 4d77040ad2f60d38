package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrymomot/livesync/core/channel"
)

const (
	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventPostgresChanges = "postgres_changes"

	phoenixTopic = "phoenix"
)

type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []changeFilter `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

// changeRecord is the body of a change event. Current servers wrap it in
// {"data": ...} under postgres_changes; older ones send it bare with the
// operation as the event name.
type changeRecord struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

func decodeChange(event string, payload json.RawMessage) (changeRecord, error) {
	var rec changeRecord
	if event == eventPostgresChanges {
		var wrapped struct {
			Data changeRecord `json:"data"`
		}
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return rec, err
		}
		rec = wrapped.Data
	} else if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, err
	}
	if rec.Type == "" {
		rec.Type = event
	}
	return rec, nil
}

func operationOf(t string) (channel.Operation, bool) {
	switch op := channel.Operation(t); op {
	case channel.OpInsert, channel.OpUpdate, channel.OpDelete:
		return op, true
	}
	return "", false
}

// affectedKeys returns the primary key of the changed row, if present.
func affectedKeys(rec changeRecord, pk string) []string {
	for _, row := range []map[string]any{rec.Record, rec.OldRecord} {
		if v, ok := row[pk]; ok && v != nil {
			return []string{fmt.Sprint(v)}
		}
	}
	return nil
}

func topicName(schema string, t channel.Topic) string {
	return "realtime:" + schema + ":" + t.String()
}
