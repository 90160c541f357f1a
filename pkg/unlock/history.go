package unlock

import "sync"

// DefaultHistoryLimit is the number of sessions kept when no limit is set.
const DefaultHistoryLimit = 10

// History keeps the most recent sessions, newest first. Adding beyond the
// limit evicts the oldest record.
type History struct {
	mu       *sync.Mutex
	limit    int
	sessions []Session
}

// NewHistory returns an empty History. A non-positive limit means
// DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		mu:       &sync.Mutex{},
		limit:    limit,
		sessions: make([]Session, 0, limit),
	}
}

// Add inserts s at the front.
func (h *History) Add(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions = append([]Session{s}, h.sessions...)
	h.truncate()
}

// List returns a copy of all sessions, newest first.
func (h *History) List() []Session {
	return h.Latest(-1)
}

// Latest returns a copy of at most n sessions, newest first. A negative n
// returns everything.
func (h *History) Latest(n int) []Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n < 0 || n > len(h.sessions) {
		n = len(h.sessions)
	}
	out := make([]Session, n)
	copy(out, h.sessions[:n])
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.sessions)
}

func (h *History) Limit() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.limit
}

// SetLimit changes the capacity, dropping the oldest sessions if needed.
func (h *History) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.limit = limit
	h.truncate()
}

// Clear removes every session.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions = make([]Session, 0, h.limit)
}

func (h *History) truncate() {
	if len(h.sessions) > h.limit {
		h.sessions = h.sessions[:h.limit]
	}
}
