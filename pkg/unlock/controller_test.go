package unlock

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestController returns a controller on a fake clock, so no schedule
// fires unless the test advances time.
func newTestController(t *testing.T, s Sampler) (*Controller, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	c := New(Options{Clock: clock, Sampler: s})
	t.Cleanup(c.Close)
	return c, clock
}

// unlockOnce drives a locked controller to unlocked with duchenne ticks.
func unlockOnce(t *testing.T, c *Controller) {
	t.Helper()
	c.Lock()
	require.NoError(t, c.StartDetection())
	c.Resample()
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	require.Equal(t, PhaseUnlocked, c.Snapshot().Phase)
}

func TestStartDetection(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))

	require.NoError(t, c.StartDetection())
	s := c.Snapshot()
	assert.Equal(t, PhaseDetecting, s.Phase)
	assert.True(t, s.Locked)
	assert.True(t, s.DetectionActive)
	assert.True(t, s.CameraActive)
	assert.Equal(t, 0, s.Progress)

	c.Resample()
	c.Tick()
	c.Tick()
	require.Equal(t, 40, c.Snapshot().Progress)

	// Restarting resets progress.
	require.NoError(t, c.StartDetection())
	assert.Equal(t, 0, c.Snapshot().Progress)
	assert.Equal(t, PhaseDetecting, c.Snapshot().Phase)
}

func TestStartDetectionWhileUnlocked(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))
	unlockOnce(t, c)

	before := c.Snapshot()
	require.ErrorIs(t, c.StartDetection(), ErrNotLocked)
	assert.Equal(t, before, c.Snapshot())
}

func TestDuchenneUnlocksOnFifthTick(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))

	require.NoError(t, c.StartDetection())
	c.Resample()
	for i, want := range []int{20, 40, 60, 80} {
		c.Tick()
		s := c.Snapshot()
		require.Equal(t, want, s.Progress, "tick %d", i+1)
		require.Equal(t, PhaseDetecting, s.Phase)
	}

	c.Tick()
	s := c.Snapshot()
	assert.Equal(t, PhaseUnlocked, s.Phase)
	assert.False(t, s.Locked)
	assert.False(t, s.DetectionActive)
	assert.False(t, s.CameraActive)
	assert.Equal(t, 100, s.Progress)
	assert.Equal(t, 1, s.TotalUnlocks)
	assert.Equal(t, 1, s.Streak)
	require.Len(t, s.Sessions, 1)
	assert.Equal(t, SessionExcellent, s.Sessions[0].Quality)
	assert.Equal(t, SessionDuration, s.Sessions[0].Duration)
	assert.NotEmpty(t, s.Sessions[0].ID)
	require.NotNil(t, s.RelockAt)
}

func TestNoSmileNeverUnlocks(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityNone))

	require.NoError(t, c.StartDetection())
	for i := 0; i < 100; i++ {
		if i%5 == 0 {
			c.Resample()
		}
		c.Tick()
		s := c.Snapshot()
		require.Equal(t, 0, s.Progress)
		require.Equal(t, PhaseDetecting, s.Phase)
	}
	assert.Equal(t, 0, c.Snapshot().TotalUnlocks)
}

func TestTickSteps(t *testing.T) {
	tests := []struct {
		name string
		seq  []Quality
		want []int
	}{
		{
			name: "artificial decays by five",
			seq:  []Quality{QualityDuchenne, QualityDuchenne, QualityArtificial, QualityArtificial},
			want: []int{20, 40, 35, 30},
		},
		{
			name: "none decays by ten",
			seq:  []Quality{QualityDuchenne, QualityNone, QualityNone, QualityNone},
			want: []int{20, 10, 0, 0},
		},
		{
			name: "artificial floors at zero",
			seq:  []Quality{QualityDuchenne, QualityNone, QualityNone, QualityArtificial},
			want: []int{20, 10, 0, 0},
		},
		{
			name: "interrupted duchenne needs more ticks",
			seq:  []Quality{QualityDuchenne, QualityDuchenne, QualityDuchenne, QualityDuchenne, QualityNone, QualityDuchenne},
			want: []int{20, 40, 60, 80, 70, 90},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, NewSequenceSampler(tt.seq...))
			require.NoError(t, c.StartDetection())
			for i, want := range tt.want {
				c.Resample()
				c.Tick()
				require.Equal(t, want, c.Snapshot().Progress, "step %d", i)
			}
			assert.Equal(t, PhaseDetecting, c.Snapshot().Phase)
		})
	}
}

func TestTickAndResampleIgnoredWhenNotDetecting(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))

	c.Resample()
	c.Tick()
	s := c.Snapshot()
	assert.Equal(t, PhaseLocked, s.Phase)
	assert.Equal(t, QualityNone, s.Quality)
	assert.Equal(t, 0, s.Progress)
}

func TestStopDetection(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))

	require.NoError(t, c.StartDetection())
	c.Resample()
	c.Tick()
	c.Tick()
	c.Tick()

	c.StopDetection()
	s := c.Snapshot()
	assert.Equal(t, PhaseLocked, s.Phase)
	assert.False(t, s.DetectionActive)
	assert.False(t, s.CameraActive)
	assert.Equal(t, 0, s.Progress)
	assert.Equal(t, QualityNone, s.Quality)

	// Idempotent.
	c.StopDetection()
	assert.Equal(t, s, c.Snapshot())
}

func TestStopDetectionWhileUnlockedKeepsLockState(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))
	unlockOnce(t, c)

	c.StopDetection()
	s := c.Snapshot()
	assert.Equal(t, PhaseUnlocked, s.Phase)
	assert.Equal(t, 0, s.Progress)
	assert.False(t, s.DetectionActive)
	assert.NotNil(t, s.RelockAt)
}

func TestAutoRelock(t *testing.T) {
	c, clock := newTestController(t, FixedSampler(QualityDuchenne))
	unlockOnce(t, c)

	clock.Advance(29 * time.Second)
	assert.Equal(t, PhaseUnlocked, c.Snapshot().Phase)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return c.Snapshot().Phase == PhaseLocked
	}, time.Second, time.Millisecond)

	s := c.Snapshot()
	assert.Equal(t, 0, s.Progress)
	assert.Equal(t, QualityNone, s.Quality)
	assert.Nil(t, s.RelockAt)
	assert.Equal(t, 1, s.TotalUnlocks)
}

func TestRelockSupersededByNewUnlock(t *testing.T) {
	c, clock := newTestController(t, FixedSampler(QualityDuchenne))
	unlockOnce(t, c)

	clock.Advance(20 * time.Second)
	unlockOnce(t, c)

	// The first unlock's deadline passes without relocking.
	clock.Advance(15 * time.Second)
	assert.Equal(t, PhaseUnlocked, c.Snapshot().Phase)

	clock.Advance(15 * time.Second)
	require.Eventually(t, func() bool {
		return c.Snapshot().Phase == PhaseLocked
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, c.Snapshot().TotalUnlocks)
}

func TestLockCancelsRelock(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	c, clock := newTestController(t, FixedSampler(QualityDuchenne))
	unlockOnce(t, c)

	c.Lock()
	s := c.Snapshot()
	assert.Equal(t, PhaseLocked, s.Phase)
	assert.Nil(t, s.RelockAt)

	c.SetObserver(ObserverFunc(func(ev Event, snap Snapshot) {
		if ev == EventPhase {
			mu.Lock()
			phases = append(phases, snap.Phase)
			mu.Unlock()
		}
	}))
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, phases)
}

func TestHistoryEviction(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))

	var ids []string
	for i := 0; i < 11; i++ {
		unlockOnce(t, c)
		ids = append(ids, c.Snapshot().Sessions[0].ID)
	}

	s := c.Snapshot()
	require.Len(t, s.Sessions, DefaultHistoryLimit)
	assert.Equal(t, 11, s.TotalUnlocks)
	assert.Equal(t, 11, s.Streak)
	// Newest first, oldest evicted.
	for i, sess := range s.Sessions {
		assert.Equal(t, ids[len(ids)-1-i], sess.ID)
	}
	for _, sess := range s.Sessions {
		assert.NotEqual(t, ids[0], sess.ID)
	}
	assert.Len(t, c.Sessions(3), 3)
}

func TestCountersIncrementOncePerUnlock(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))

	for i := 1; i <= 3; i++ {
		unlockOnce(t, c)
		// Extra ticks after unlocking must not count again.
		c.Tick()
		s := c.Snapshot()
		assert.Equal(t, i, s.TotalUnlocks)
		assert.Equal(t, i, s.Streak)
	}
}

func TestResetData(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))
	unlockOnce(t, c)
	unlockOnce(t, c)

	c.ResetData()
	s := c.Snapshot()
	assert.Empty(t, s.Sessions)
	assert.Equal(t, 0, s.Streak)
	assert.Equal(t, 0, s.TotalUnlocks)
	assert.Equal(t, PhaseUnlocked, s.Phase)
}

func TestProgressStaysInRange(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	c, _ := newTestController(t, NewRandomSampler(42))

	require.NoError(t, c.StartDetection())
	for i := 0; i < 5000; i++ {
		switch rnd.IntN(10) {
		case 0, 1:
			c.Resample()
		case 2:
			if rnd.IntN(20) == 0 {
				c.StopDetection()
			}
		default:
			c.Tick()
		}

		s := c.Snapshot()
		require.GreaterOrEqual(t, s.Progress, 0)
		require.LessOrEqual(t, s.Progress, MaxProgress)
		require.LessOrEqual(t, len(s.Sessions), DefaultHistoryLimit)
		if s.Progress == MaxProgress {
			require.Equal(t, PhaseUnlocked, s.Phase)
		}

		if s.Phase != PhaseDetecting {
			c.Lock()
			require.NoError(t, c.StartDetection())
		}
	}
}

func TestObserverEvents(t *testing.T) {
	var events []Event
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))
	c.SetObserver(ObserverFunc(func(ev Event, _ Snapshot) {
		events = append(events, ev)
	}))

	require.NoError(t, c.StartDetection())
	c.Resample()
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	c.ResetData()

	assert.Contains(t, events, EventPhase)
	assert.Contains(t, events, EventQuality)
	assert.Contains(t, events, EventProgress)
	assert.Contains(t, events, EventSessionAdded)
	assert.Equal(t, EventDataReset, events[len(events)-1])
}

func TestSchedulesRunOnRealClock(t *testing.T) {
	c := New(Options{
		TickInterval:     2 * time.Millisecond,
		ResampleInterval: 5 * time.Millisecond,
		RelockDelay:      time.Hour,
		Sampler:          FixedSampler(QualityDuchenne),
	})
	defer c.Close()

	require.NoError(t, c.StartDetection())
	require.Eventually(t, func() bool {
		return c.Snapshot().Phase == PhaseUnlocked
	}, 2*time.Second, time.Millisecond)

	s := c.Snapshot()
	assert.Equal(t, 100, s.Progress)
	assert.Equal(t, 1, s.TotalUnlocks)
}

func TestStopHaltsSchedules(t *testing.T) {
	c := New(Options{
		TickInterval:     time.Millisecond,
		ResampleInterval: time.Millisecond,
		Sampler:          FixedSampler(QualityArtificial),
	})
	defer c.Close()

	require.NoError(t, c.StartDetection())
	require.Eventually(t, func() bool {
		return c.Snapshot().Quality == QualityArtificial
	}, 2*time.Second, time.Millisecond)

	c.StopDetection()
	time.Sleep(20 * time.Millisecond)
	s := c.Snapshot()
	assert.Equal(t, PhaseLocked, s.Phase)
	assert.Equal(t, QualityNone, s.Quality)
}

func TestClosedControllerIgnoresCalls(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))
	require.NoError(t, c.StartDetection())

	c.Close()
	require.ErrorIs(t, c.StartDetection(), ErrClosed)
	c.Resample()
	c.Tick()
	c.Lock()
	assert.Equal(t, QualityNone, c.Snapshot().Quality)
	assert.Equal(t, PhaseDetecting, c.Snapshot().Phase)
}

func TestObserverFollowsUpdateOrder(t *testing.T) {
	c, _ := newTestController(t, FixedSampler(QualityDuchenne))
	require.NoError(t, c.StartDetection())
	c.Resample()

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		last Snapshot
		once sync.Once
	)
	c.SetObserver(ObserverFunc(func(ev Event, snap Snapshot) {
		if ev == EventProgress && snap.Progress == 20 {
			// Hold the tick's notification back.
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		last = snap
		mu.Unlock()
	}))

	tickDone := make(chan struct{})
	go func() {
		c.Tick()
		close(tickDone)
	}()
	<-entered

	stopDone := make(chan struct{})
	go func() {
		c.StopDetection()
		close(stopDone)
	}()
	// The stop is applied while the tick is still being delivered.
	require.Eventually(t, func() bool {
		return c.Snapshot().Phase == PhaseLocked
	}, time.Second, time.Millisecond)

	close(release)
	<-tickDone
	<-stopDone

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, PhaseLocked, last.Phase)
	assert.Equal(t, 0, last.Progress)
	assert.Equal(t, QualityNone, last.Quality)
}

// advanceTick moves the fake clock by one default tick interval and waits
// until the schedules due at the new time have run.
func advanceTick(t *testing.T, c *Controller, clock clockwork.FakeClock, resampleDue bool) {
	t.Helper()

	c.mu.Lock()
	tick, resample := c.tickTimer, c.resampleTimer
	c.mu.Unlock()

	clock.Advance(DefaultTickInterval)
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.phase != PhaseDetecting {
			return true
		}
		return c.tickTimer != tick && (!resampleDue || c.resampleTimer != resample)
	}, time.Second, time.Millisecond)
}

func TestDefaultCadenceOnFakeClock(t *testing.T) {
	var samples atomic.Int32
	c, clock := newTestController(t, SamplerFunc(func() Quality {
		samples.Add(1)
		return QualityDuchenne
	}))
	start := clock.Now()
	require.NoError(t, c.StartDetection())

	// The first four ticks come before any resample.
	for i := 1; i <= 4; i++ {
		advanceTick(t, c, clock, false)
		s := c.Snapshot()
		require.Equal(t, PhaseDetecting, s.Phase)
		require.Equal(t, 0, s.Progress)
		require.Equal(t, QualityNone, s.Quality)
	}
	require.Equal(t, int32(0), samples.Load())

	// At 500ms both are due. The tick may read either quality.
	advanceTick(t, c, clock, true)
	require.Equal(t, int32(1), samples.Load())
	first := c.Snapshot()
	require.Equal(t, QualityDuchenne, first.Quality)
	require.Contains(t, []int{0, 20}, first.Progress)

	steps := 5
	for c.Snapshot().Phase == PhaseDetecting {
		require.Less(t, steps, 10, "still detecting after %d ticks", steps)
		steps++
		advanceTick(t, c, clock, steps%5 == 0)
	}
	if first.Progress == 20 {
		assert.Equal(t, 9, steps)
	} else {
		assert.Equal(t, 10, steps)
	}
	assert.LessOrEqual(t, samples.Load(), int32(2))

	s := c.Snapshot()
	require.Equal(t, PhaseUnlocked, s.Phase)
	assert.Equal(t, MaxProgress, s.Progress)
	require.Len(t, s.Sessions, 1)
	assert.Equal(t, SessionExcellent, s.Sessions[0].Quality)
	unlockedAt := start.Add(time.Duration(steps) * DefaultTickInterval)
	assert.True(t, unlockedAt.Equal(s.Sessions[0].Timestamp))
	require.NotNil(t, s.RelockAt)
	assert.True(t, unlockedAt.Add(DefaultRelockDelay).Equal(*s.RelockAt))

	clock.Advance(DefaultRelockDelay - time.Millisecond)
	assert.Equal(t, PhaseUnlocked, c.Snapshot().Phase)
	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		return c.Snapshot().Phase == PhaseLocked
	}, time.Second, time.Millisecond)
}
