package unlock

import (
	"fmt"
	"time"
)

// Quality is the simulated smile classification reported by a Sampler.
type Quality string

const (
	QualityNone       Quality = "none"
	QualityArtificial Quality = "artificial"
	QualityDuchenne   Quality = "duchenne"
)

// Qualities lists every Quality value in sampling order.
var Qualities = []Quality{QualityNone, QualityArtificial, QualityDuchenne}

// ParseQuality converts a string into a Quality.
func ParseQuality(s string) (Quality, error) {
	for _, q := range Qualities {
		if string(q) == s {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown smile quality %q", s)
}

// Phase is the controller state. It replaces the locked, detecting and
// camera-active flags, which only ever appear in these three combinations.
type Phase string

const (
	PhaseLocked    Phase = "Locked"
	PhaseDetecting Phase = "Detecting"
	PhaseUnlocked  Phase = "Unlocked"
)

// SessionQuality grades a recorded unlock.
type SessionQuality string

const (
	SessionGood      SessionQuality = "good"
	SessionExcellent SessionQuality = "excellent"
)

// SessionDuration is the fixed duration, in seconds, recorded for every unlock.
const SessionDuration = 5

// Session is an immutable record of one unlock.
type Session struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  int            `json:"duration"`
	Quality   SessionQuality `json:"quality"`
}

// Snapshot is a consistent copy of the controller state, as read by the
// presentation layer.
type Snapshot struct {
	Phase           Phase      `json:"phase"`
	Locked          bool       `json:"locked"`
	DetectionActive bool       `json:"detectionActive"`
	CameraActive    bool       `json:"cameraActive"`
	Progress        int        `json:"progress"`
	Quality         Quality    `json:"quality"`
	Sessions        []Session  `json:"sessions"`
	Streak          int        `json:"streak"`
	TotalUnlocks    int        `json:"totalUnlocks"`
	RelockAt        *time.Time `json:"relockAt,omitempty"`
}

// Event names a kind of state change delivered to an Observer.
type Event string

const (
	EventPhase        Event = "state.phase"
	EventProgress     Event = "state.progress"
	EventQuality      Event = "state.quality"
	EventSessionAdded Event = "session.added"
	EventDataReset    Event = "data.reset"
)

// Observer receives state changes. It is called without the controller lock
// held, possibly from timer goroutines, and one update at a time in the order
// the updates happened. It must not change the controller from inside
// OnStateChange.
type Observer interface {
	OnStateChange(ev Event, snap Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event, snap Snapshot)

func (f ObserverFunc) OnStateChange(ev Event, snap Snapshot) { f(ev, snap) }
