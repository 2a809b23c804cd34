// internal/game/types.go
//
// Core type definitions shared by the session layer.
// Defines:
//   - Kind: closed set of game variants (namespaces every store key).
//   - State: lifecycle value carried in the reserved "state" field.
//   - Record: the opaque field map persisted for a session.
//   - Definition: per-kind initial-state and decode hooks.

package game

import "time"

// Kind tags which game variant a session belongs to.
type Kind string

const (
	KindGoFish Kind = "gofish"
)

// Kinds lists every known kind. Config and routing iterate over it.
func Kinds() []Kind {
	return []Kind{KindGoFish}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// State is the lifecycle value stored under FieldState.
// Expected order: initializing → in_progress → completed. The session layer
// stores whatever is written and never enforces the order.
type State string

const (
	StateInitializing State = "initializing"
	StateInProgress   State = "in_progress"
	StateCompleted    State = "completed"
)

// Reserved record fields. Everything else in a Record belongs to the kind.
const (
	FieldID    = "id"
	FieldHost  = "host"
	FieldState = "state"
)

// Record is the field map persisted for one session. Values are stored verbatim.
type Record map[string]string

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Definition binds a kind to its initial record and its typed view.
type Definition[T any] struct {
	Kind Kind

	// Initial returns the kind-specific fields of a fresh session hosted by host.
	// Reserved fields are filled in by the registry.
	Initial func(host string, now time.Time) Record

	// Decode converts a stored record into the kind's typed state.
	Decode func(Record) (T, error)
}
