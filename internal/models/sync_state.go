package models

// SyncState is the reconciliation state of an event or session meeting.
// It is persisted as a nullable boolean: true is InSync, false is
// PendingAction and NULL is NeverRequested.
type SyncState int

const (
	NeverRequested SyncState = iota
	PendingAction
	InSync
)

func SyncStateFromNullable(v *bool) SyncState {
	if v == nil {
		return NeverRequested
	}
	if *v {
		return InSync
	}
	return PendingAction
}

// Nullable returns the column value for the state.
func (s SyncState) Nullable() *bool {
	var v bool
	switch s {
	case InSync:
		v = true
	case PendingAction:
		v = false
	default:
		return nil
	}
	return &v
}

func (s SyncState) String() string {
	switch s {
	case InSync:
		return "in_sync"
	case PendingAction:
		return "pending_action"
	default:
		return "never_requested"
	}
}
