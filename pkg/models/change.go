package models

// Action is the kind of row change reported by the update hook.
type Action string

// Row change actions.
const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ChangeEvent describes one committed row change. RowID is the engine's
// internal rowid, not a declared primary key.
type ChangeEvent struct {
	Action Action `json:"action" cbor:"action"`
	Table  string `json:"table" cbor:"table"`
	RowID  int64  `json:"row_id" cbor:"row_id"`
}
