package model

import "time"

// ActionKind is the sealed sum of per-item sync decisions (design notes
// section 9: "Dynamic action strings" — reimplemented as a typed enum so
// exhaustive switches catch missing handlers at compile time).
type ActionKind int

// Action kinds produced by the UPLOAD and DELTA phases.
const (
	ActionCreateRemote ActionKind = iota + 1
	ActionUpdateRemote
	ActionItemConflict
	ActionNoteConflict
	ActionResourceConflict
	ActionCreateLocal
	ActionUpdateLocal
	ActionDeleteLocal
	ActionDeleteRemote
)

// String renders the action kind using the same labels the source
// system's dynamic strings used, for log/report compatibility.
func (k ActionKind) String() string {
	switch k {
	case ActionCreateRemote:
		return "createRemote"
	case ActionUpdateRemote:
		return "updateRemote"
	case ActionItemConflict:
		return "itemConflict"
	case ActionNoteConflict:
		return "noteConflict"
	case ActionResourceConflict:
		return "resourceConflict"
	case ActionCreateLocal:
		return "createLocal"
	case ActionUpdateLocal:
		return "updateLocal"
	case ActionDeleteLocal:
		return "deleteLocal"
	case ActionDeleteRemote:
		return "deleteRemote"
	default:
		return "unknown"
	}
}

// RunState is the Synchronizer's state machine (spec section 4.1).
type RunState int

// Run states.
const (
	StateIdle RunState = iota
	StateInProgress
)

func (s RunState) String() string {
	if s == StateInProgress {
		return "in_progress"
	}

	return "idle"
}

// Report holds running counters keyed by action, plus run metadata.
// Snapshots delivered to subscribers are values, not pointers (design
// notes section 9: "replace hand-copied snapshots with an immutable
// value type").
type Report struct {
	CreateLocal       int
	UpdateLocal       int
	CreateRemote      int
	UpdateRemote      int
	DeleteLocal       int
	DeleteRemote      int
	ItemConflict      int
	NoteConflict      int
	ResourceConflict  int
	FetchingTotal     int
	FetchingProcessed int
	Cancelling        bool

	StartTime     time.Time
	CompletedTime time.Time
	State         RunState

	Errors []string
}

// Snapshot returns a deep-enough copy safe to hand to subscribers: the
// Errors slice is cloned so a subscriber cannot observe later in-place
// mutation (spec section 5 "Shared resources").
func (r *Report) Snapshot() Report {
	cp := *r
	if len(r.Errors) > 0 {
		cp.Errors = append([]string(nil), r.Errors...)
	}

	return cp
}

// RecordAction increments the counter for the given action kind. Unknown
// kinds are ignored defensively; callers only ever pass the sealed enum.
func (r *Report) RecordAction(kind ActionKind) {
	switch kind {
	case ActionCreateLocal:
		r.CreateLocal++
	case ActionUpdateLocal:
		r.UpdateLocal++
	case ActionCreateRemote:
		r.CreateRemote++
	case ActionUpdateRemote:
		r.UpdateRemote++
	case ActionDeleteLocal:
		r.DeleteLocal++
	case ActionDeleteRemote:
		r.DeleteRemote++
	case ActionItemConflict:
		r.ItemConflict++
	case ActionNoteConflict:
		r.NoteConflict++
	case ActionResourceConflict:
		r.ResourceConflict++
	}
}

// AddError appends a user-visible message to the report (spec section 7:
// failSafe/lockError and similar push a message here).
func (r *Report) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
