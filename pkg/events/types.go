package events

import (
	"encoding/json"

	"github.com/charlie0129/smilelock/pkg/unlock"
)

// Event name constants
const (
	StatePhase    = string(unlock.EventPhase)
	StateProgress = string(unlock.EventProgress)
	StateQuality  = string(unlock.EventQuality)
	SessionAdded  = string(unlock.EventSessionAdded)
	DataReset     = string(unlock.EventDataReset)
	// Hello is sent once when a stream opens, carrying the current state.
	Hello = "hello"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// StateEvent is the typed payload of every state event.
type StateEvent struct {
	State unlock.Snapshot `json:"state"`
	Ts    int64           `json:"ts"` // unix milliseconds
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.StateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.State.Phase, payload.State.Progress)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
