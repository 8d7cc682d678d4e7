package model

import "encoding/json"

// Offline operation kinds.
const (
	OfflineCreate = "create"
	OfflineUpdate = "update"
	OfflineDelete = "delete"
)

// OfflineOperation is a property mutation queued while the store was unreachable.
type OfflineOperation struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Type      string          `json:"type"`
	TargetID  string          `json:"target_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Synced    bool            `json:"synced"`
}
