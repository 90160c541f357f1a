package daemon

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smilelock/pkg/events"
	"github.com/charlie0129/smilelock/pkg/metrics"
	"github.com/charlie0129/smilelock/pkg/unlock"
)

// stateObserver forwards controller changes to metrics, the log and SSE
// subscribers.
type stateObserver struct {
	hub *events.EventHub
}

func newStateObserver(hub *events.EventHub) *stateObserver {
	return &stateObserver{hub: hub}
}

func (o *stateObserver) OnStateChange(ev unlock.Event, snap unlock.Snapshot) {
	metrics.Observe(ev, snap)
	logStateChange(ev, snap)
	o.hub.Publish(string(ev), events.StateEvent{State: snap, Ts: time.Now().UnixMilli()})
}

func logStateChange(ev unlock.Event, snap unlock.Snapshot) {
	entry := logrus.WithFields(logrus.Fields{
		"phase":    snap.Phase,
		"progress": snap.Progress,
		"quality":  snap.Quality,
	})

	switch ev {
	case unlock.EventPhase:
		entry.Infof("phase changed to %s", snap.Phase)
	case unlock.EventSessionAdded:
		entry.WithFields(logrus.Fields{
			"streak":       snap.Streak,
			"totalUnlocks": snap.TotalUnlocks,
		}).Info("unlocked, session recorded")
	case unlock.EventDataReset:
		entry.Info("session history and counters reset")
	case unlock.EventQuality:
		entry.Debug("smile quality changed")
	default:
		// Progress moves every tick.
		entry.Trace("progress changed")
	}
}
