package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs Task at every occurrence of a cron schedule. It is used for
// periodic data resets. An empty schedule disables it without stopping the
// loop.
type Scheduler struct {
	OnError NotifyFunc // called on task error
	Task    TaskFunc   // task callback

	parser cron.Parser

	schedule cron.Schedule
	expr     string
	nextRun  time.Time

	mu      sync.Mutex
	running bool

	controlCh chan controlMsg
	stopCh    chan struct{}
}

// internal control kinds (not user visible events)
type controlKind int

const (
	ctrlRecalculate controlKind = iota // schedule replaced or disabled
	ctrlSkip                           // next run skipped
)

type controlMsg struct {
	kind controlKind
}

func NewScheduler(task TaskFunc, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnError:   onError,
		Task:      task,
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh: make(chan controlMsg, 4),
		stopCh:    make(chan struct{}),
	}
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

// Validate reports whether cronExpr would be accepted by Schedule.
func (s *Scheduler) Validate(cronExpr string) error {
	_, err := s.parse(cronExpr)
	return err
}

func (s *Scheduler) parse(cronExpr string) (cron.Schedule, error) {
	if cronExpr == "" {
		return nil, nil
	}
	sh, err := s.parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return sh, nil
}

// Schedule replaces the cron expression. An empty expression disables
// scheduled runs.
func (s *Scheduler) Schedule(cronExpr string) error {
	sh, err := s.parse(cronExpr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.schedule = sh
	s.expr = cronExpr
	s.nextRun = time.Time{}
	if sh != nil {
		s.nextRun = sh.Next(time.Now())
	}
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate)
	}
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip)
	}
	return nil
}

// Status returns the next run (zero if disabled), the expression in use and
// whether the loop is running.
func (s *Scheduler) Status() (nextRun time.Time, expr string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextRun, s.expr, s.running
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		schedule, nextRun := s.snapshot()
		var timer *time.Timer
		if schedule == nil || nextRun.IsZero() {
			timer = time.NewTimer(time.Hour * 10000)
		} else {
			wait := time.Until(nextRun)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		select {
		case <-timer.C:
			if schedule == nil || nextRun.IsZero() {
				continue
			}

			logrus.Debugf("running scheduled task at %s", nextRun.Format(time.DateTime))

			go func() {
				if err := s.Task(); err != nil {
					s.sendError(fmt.Errorf("task failed: %v", err))
				}
			}()
			s.advanceNextRun(nextRun)
		case <-s.stopCh:
			timer.Stop()
			return
		case msg := <-s.controlCh:
			timer.Stop()
			logrus.WithField("kind", msg.kind).Debug("received control msg")
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

// advanceNextRun moves past ran, unless the schedule changed meanwhile.
func (s *Scheduler) advanceNextRun(ran time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(ran) {
		return
	}
	s.nextRun = s.schedule.Next(time.Now())
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}

func (s *Scheduler) trySendControl(kind controlKind) {
	select {
	case s.controlCh <- controlMsg{kind: kind}:
	default:
	}
}
