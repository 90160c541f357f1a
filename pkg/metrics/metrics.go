package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/charlie0129/smilelock/pkg/unlock"
)

var (
	unlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smilelock_unlocks_total",
		Help: "Unlocks by recorded session quality",
	}, []string{"quality"}) // quality=good|excellent

	phaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smilelock_phase_transitions_total",
		Help: "Controller phase transitions by target phase",
	}, []string{"phase"})

	qualityChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smilelock_quality_changes_total",
		Help: "Observed smile quality changes by new value",
	}, []string{"quality"})

	dataResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smilelock_data_resets_total",
		Help: "Number of times session history and counters were reset",
	})

	progressGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smilelock_progress",
		Help: "Current smile progress (0-100)",
	})

	streakGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smilelock_streak",
		Help: "Current unlock streak",
	})

	lockedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smilelock_locked",
		Help: "Whether the simulated phone is locked (1) or unlocked (0)",
	})
)

// Observe updates metrics for one controller event.
func Observe(ev unlock.Event, snap unlock.Snapshot) {
	progressGauge.Set(float64(snap.Progress))
	streakGauge.Set(float64(snap.Streak))
	if snap.Locked {
		lockedGauge.Set(1)
	} else {
		lockedGauge.Set(0)
	}

	switch ev {
	case unlock.EventPhase:
		phaseTransitionsTotal.WithLabelValues(string(snap.Phase)).Inc()
	case unlock.EventQuality:
		qualityChangesTotal.WithLabelValues(string(snap.Quality)).Inc()
	case unlock.EventSessionAdded:
		if len(snap.Sessions) > 0 {
			unlocksTotal.WithLabelValues(string(snap.Sessions[0].Quality)).Inc()
		}
	case unlock.EventDataReset:
		dataResetsTotal.Inc()
	}
}
