// Package events defines the typed event sum the Synchronizer dispatches
// (spec section 6 "Events dispatched") and a Dispatcher interface
// decoupling the core from any particular transport — matching the
// teacher's design note that the orchestrator depends on a typed
// dispatch interface rather than a concrete UI framework.
package events

import "github.com/devilkun/joplin/internal/model"

// Kind discriminates the event sum.
type Kind int

// Event kinds, one per spec section 6 dispatch.
const (
	KindStarted Kind = iota
	KindReportUpdate
	KindHasDisabledSyncItems
	KindGotEncryptedItem
	KindCreatedOrUpdatedResource
	KindCompleted
)

func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "SYNC_STARTED"
	case KindReportUpdate:
		return "SYNC_REPORT_UPDATE"
	case KindHasDisabledSyncItems:
		return "SYNC_HAS_DISABLED_SYNC_ITEMS"
	case KindGotEncryptedItem:
		return "SYNC_GOT_ENCRYPTED_ITEM"
	case KindCreatedOrUpdatedResource:
		return "SYNC_CREATED_OR_UPDATED_RESOURCE"
	case KindCompleted:
		return "SYNC_COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Event is the value dispatched to subscribers. Only the field matching
// Kind is meaningful; the others are zero.
type Event struct {
	Kind Kind

	Report     model.Report // KindReportUpdate
	ResourceID string       // KindCreatedOrUpdatedResource
	IsFullSync bool         // KindCompleted: true when all three phases ran
	WithErrors bool         // KindCompleted
}

// Dispatcher receives events from a sync run. Implementations must not
// block the orchestrator for long — the engine dispatches synchronously
// at each phase boundary and per mutated item.
type Dispatcher interface {
	Dispatch(Event)
}

// Func adapts a plain function to Dispatcher.
type Func func(Event)

func (f Func) Dispatch(e Event) { f(e) }

// Multi fans a single Dispatch out to multiple dispatchers in order.
type Multi []Dispatcher

func (m Multi) Dispatch(e Event) {
	for _, d := range m {
		d.Dispatch(e)
	}
}
