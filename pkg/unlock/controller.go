package unlock

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	MaxProgress = 100

	duchenneGain      = 20
	artificialPenalty = 5
	nonePenalty       = 10

	DefaultTickInterval     = 100 * time.Millisecond
	DefaultResampleInterval = 500 * time.Millisecond
	DefaultRelockDelay      = 30 * time.Second
)

var (
	// ErrNotLocked is returned by StartDetection while unlocked. State is
	// left untouched.
	ErrNotLocked = errors.New("detection can only start while locked")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("controller closed")
)

// Options configures a Controller. Zero values fall back to defaults.
type Options struct {
	TickInterval     time.Duration
	ResampleInterval time.Duration
	RelockDelay      time.Duration
	HistoryLimit     int
	Sampler          Sampler
	Clock            clockwork.Clock
	Observer         Observer
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.ResampleInterval <= 0 {
		o.ResampleInterval = DefaultResampleInterval
	}
	if o.RelockDelay <= 0 {
		o.RelockDelay = DefaultRelockDelay
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.Sampler == nil {
		o.Sampler = NewRandomSampler(uint64(time.Now().UnixNano()))
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Controller is the smile unlock state machine.
//
// While detecting, two independent schedules run: a resample schedule that
// replaces the current quality with a new draw, and a progress schedule that
// reads whatever quality is current and moves progress. They are never
// merged; a tick may observe a quality that is about to change.
//
// Every unlock arms a one-shot relock. A newer unlock, a manual Lock or
// Close cancels it.
type Controller struct {
	mu sync.Mutex

	clock    clockwork.Clock
	sampler  Sampler
	observer Observer

	tickInterval     time.Duration
	resampleInterval time.Duration
	relockDelay      time.Duration

	phase        Phase
	progress     int
	quality      Quality
	history      *History
	streak       int
	totalUnlocks int

	// detectGen identifies the current detection run. Periodic callbacks
	// armed for an older run are ignored.
	detectGen     uint64
	tickTimer     clockwork.Timer
	resampleTimer clockwork.Timer

	relockGen   uint64
	relockTimer clockwork.Timer
	relockAt    time.Time

	closed bool

	// Observer deliveries take a ticket under mu and run strictly in ticket
	// order, so notifications follow the order of the mutations.
	nextTicket uint64
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64
}

// New returns a locked Controller.
func New(opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		clock:            opts.Clock,
		sampler:          opts.Sampler,
		observer:         opts.Observer,
		tickInterval:     opts.TickInterval,
		resampleInterval: opts.ResampleInterval,
		relockDelay:      opts.RelockDelay,
		phase:            PhaseLocked,
		quality:          QualityNone,
		history:          NewHistory(opts.HistoryLimit),
	}
	c.notifyCond = sync.NewCond(&c.notifyMu)
	return c
}

// Configure replaces timing, history and sampler settings. Intervals take
// effect on the next detection run, the relock delay on the next unlock.
// Clock and Observer are not changed.
func (c *Controller) Configure(opts Options) {
	opts = opts.withDefaults()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tickInterval = opts.TickInterval
	c.resampleInterval = opts.ResampleInterval
	c.relockDelay = opts.RelockDelay
	c.sampler = opts.Sampler
	c.history.SetLimit(opts.HistoryLimit)
}

// SetObserver replaces the observer. nil disables notifications.
func (c *Controller) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observer = o
}

// StartDetection turns the camera on, resets progress and starts both
// periodic schedules. Calling it again while detecting restarts the run.
func (c *Controller) StartDetection() error {
	var err error
	ok := c.update(func() []Event {
		if c.phase == PhaseUnlocked {
			err = ErrNotLocked
			return nil
		}
		c.stopPeriodicLocked()
		c.phase = PhaseDetecting
		c.progress = 0

		gen := c.detectGen
		c.tickTimer = c.clock.AfterFunc(c.tickInterval, func() { c.runTick(gen) })
		c.resampleTimer = c.clock.AfterFunc(c.resampleInterval, func() { c.runResample(gen) })
		return nil
	})
	if !ok {
		return ErrClosed
	}
	return err
}

// StopDetection cancels both periodic schedules and clears progress and
// quality. It never changes the lock state and is safe to call at any time.
func (c *Controller) StopDetection() {
	c.update(func() []Event {
		c.stopPeriodicLocked()
		if c.phase == PhaseDetecting {
			c.phase = PhaseLocked
		}
		c.progress = 0
		c.quality = QualityNone
		return nil
	})
}

// Tick applies one progress step using the current quality. It is what the
// progress schedule runs and does nothing unless detecting.
func (c *Controller) Tick() {
	c.update(func() []Event {
		c.tickLocked()
		return nil
	})
}

// Resample draws a new quality. It is what the resample schedule runs and
// does nothing unless detecting.
func (c *Controller) Resample() {
	c.update(func() []Event {
		c.resampleLocked()
		return nil
	})
}

// Lock cancels detection and any pending relock and locks immediately.
func (c *Controller) Lock() {
	c.update(func() []Event {
		c.stopPeriodicLocked()
		c.cancelRelockLocked()
		c.phase = PhaseLocked
		c.progress = 0
		c.quality = QualityNone
		return nil
	})
}

// ResetData clears the session history and both counters.
func (c *Controller) ResetData() {
	c.update(func() []Event {
		c.history.Clear()
		c.streak = 0
		c.totalUnlocks = 0
		return []Event{EventDataReset}
	})
}

// Close stops every schedule. The controller ignores all later calls.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.stopPeriodicLocked()
	c.cancelRelockLocked()
	c.closed = true
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Sessions returns at most n sessions, newest first. A negative n returns
// all of them.
func (c *Controller) Sessions(n int) []Session {
	return c.history.Latest(n)
}

func (c *Controller) runTick(gen uint64) {
	c.update(func() []Event {
		if gen != c.detectGen || c.phase != PhaseDetecting {
			return nil
		}
		c.tickLocked()
		if c.phase == PhaseDetecting {
			c.tickTimer = c.clock.AfterFunc(c.tickInterval, func() { c.runTick(gen) })
		}
		return nil
	})
}

func (c *Controller) runResample(gen uint64) {
	c.update(func() []Event {
		if gen != c.detectGen || c.phase != PhaseDetecting {
			return nil
		}
		c.resampleLocked()
		c.resampleTimer = c.clock.AfterFunc(c.resampleInterval, func() { c.runResample(gen) })
		return nil
	})
}

func (c *Controller) runRelock(gen uint64) {
	c.update(func() []Event {
		if gen != c.relockGen || c.phase != PhaseUnlocked {
			return nil
		}
		c.relockTimer = nil
		c.relockAt = time.Time{}
		c.phase = PhaseLocked
		c.progress = 0
		c.quality = QualityNone
		return nil
	})
}

func (c *Controller) tickLocked() {
	if c.phase != PhaseDetecting {
		return
	}

	switch c.quality {
	case QualityDuchenne:
		c.progress = min(c.progress+duchenneGain, MaxProgress)
		if c.progress >= MaxProgress {
			c.unlockLocked()
		}
	case QualityArtificial:
		c.progress = max(c.progress-artificialPenalty, 0)
	default:
		c.progress = max(c.progress-nonePenalty, 0)
	}
}

func (c *Controller) resampleLocked() {
	if c.phase != PhaseDetecting {
		return
	}
	c.quality = c.sampler.Sample()
}

func (c *Controller) unlockLocked() {
	if c.phase == PhaseUnlocked {
		return
	}

	c.stopPeriodicLocked()
	c.phase = PhaseUnlocked
	c.progress = MaxProgress

	q := SessionGood
	if c.quality == QualityDuchenne {
		q = SessionExcellent
	}
	c.history.Add(Session{
		ID:        uuid.NewString(),
		Timestamp: c.clock.Now(),
		Duration:  SessionDuration,
		Quality:   q,
	})
	c.totalUnlocks++
	c.streak++

	c.cancelRelockLocked()
	gen := c.relockGen
	c.relockAt = c.clock.Now().Add(c.relockDelay)
	c.relockTimer = c.clock.AfterFunc(c.relockDelay, func() { c.runRelock(gen) })
}

// stopPeriodicLocked stops both detection schedules and invalidates any
// callback already in flight.
func (c *Controller) stopPeriodicLocked() {
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}
	if c.resampleTimer != nil {
		c.resampleTimer.Stop()
		c.resampleTimer = nil
	}
	c.detectGen++
}

func (c *Controller) cancelRelockLocked() {
	if c.relockTimer != nil {
		c.relockTimer.Stop()
		c.relockTimer = nil
	}
	c.relockAt = time.Time{}
	c.relockGen++
}

// update runs fn under the lock and reports the resulting changes to the
// observer. It returns false if the controller is closed.
//
// The observer runs outside mu, in the order the updates were applied. It may
// read the controller but must not call methods that change it.
func (c *Controller) update(fn func() []Event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	obs := c.observer
	var before Snapshot
	if obs != nil {
		before = c.snapshotLocked()
	}
	extra := fn()
	var after Snapshot
	var ticket uint64
	if obs != nil {
		after = c.snapshotLocked()
		ticket = c.nextTicket
		c.nextTicket++
	}
	c.mu.Unlock()

	if obs == nil {
		return true
	}

	c.notifyMu.Lock()
	for c.delivered != ticket {
		c.notifyCond.Wait()
	}
	for _, ev := range changes(before, after, extra) {
		obs.OnStateChange(ev, after)
	}
	c.delivered++
	c.notifyCond.Broadcast()
	c.notifyMu.Unlock()
	return true
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:           c.phase,
		Locked:          c.phase != PhaseUnlocked,
		DetectionActive: c.phase == PhaseDetecting,
		CameraActive:    c.phase == PhaseDetecting,
		Progress:        c.progress,
		Quality:         c.quality,
		Sessions:        c.history.List(),
		Streak:          c.streak,
		TotalUnlocks:    c.totalUnlocks,
	}
	if !c.relockAt.IsZero() {
		t := c.relockAt
		s.RelockAt = &t
	}
	return s
}

func changes(before, after Snapshot, extra []Event) []Event {
	var evs []Event
	if before.Phase != after.Phase {
		evs = append(evs, EventPhase)
	}
	if before.Progress != after.Progress {
		evs = append(evs, EventProgress)
	}
	if before.Quality != after.Quality {
		evs = append(evs, EventQuality)
	}
	if after.TotalUnlocks > before.TotalUnlocks {
		evs = append(evs, EventSessionAdded)
	}
	return append(evs, extra...)
}
