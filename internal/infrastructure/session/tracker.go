package session

import (
	"context"
	"sync"
	"time"
)

type EventKind string

const (
	EventWarned  EventKind = "warned"
	EventExpired EventKind = "expired"
)

// Event reports a session crossing its warning or expiry threshold.
type Event struct {
	UserID string
	Kind   EventKind
	Idle   time.Duration
	At     time.Time
}

// Tracker follows per-user activity windows so the API can tell an
// active editing session from an abandoned one. Sessions are warned
// once after WarnAfter of silence and dropped after IdleTimeout;
// threshold crossings go out to subscribers. Publishing never blocks
// the sweep: a subscriber that falls behind loses events.
type Tracker struct {
	mu          sync.Mutex
	sessions    map[string]*state
	subscribers map[int]chan Event
	nextSub     int
	opts        Options
}

type state struct {
	startedAt time.Time
	lastSeen  time.Time
	warned    bool
}

type Options struct {
	IdleTimeout time.Duration
	WarnAfter   time.Duration
}

const subscriberBuffer = 16

func New(opts Options) *Tracker {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.WarnAfter <= 0 || opts.WarnAfter >= opts.IdleTimeout {
		opts.WarnAfter = opts.IdleTimeout * 5 / 6
	}
	return &Tracker{
		sessions:    make(map[string]*state),
		subscribers: make(map[int]chan Event),
		opts:        opts,
	}
}

// Touch starts or refreshes a user's session and rearms the warning.
func (t *Tracker) Touch(userID string) {
	if userID == "" {
		return
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[userID]
	if !ok {
		t.sessions[userID] = &state{startedAt: now, lastSeen: now}
		return
	}
	s.lastSeen = now
	s.warned = false
}

func (t *Tracker) End(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, userID)
}

func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Subscribe registers a watcher for warning and expiry events. The stop
// function unregisters it and closes the channel.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSub++
	id := t.nextSub
	ch := make(chan Event, subscriberBuffer)
	t.subscribers[id] = ch

	stop := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if live, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(live)
		}
	}
	return ch, stop
}

// Sweep fires warnings and expiries against the given clock reading.
func (t *Tracker) Sweep(now time.Time) {
	var events []Event

	t.mu.Lock()
	defer t.mu.Unlock()
	for userID, s := range t.sessions {
		idle := now.Sub(s.lastSeen)
		switch {
		case idle >= t.opts.IdleTimeout:
			delete(t.sessions, userID)
			events = append(events, Event{UserID: userID, Kind: EventExpired, Idle: idle, At: now})
		case idle >= t.opts.WarnAfter && !s.warned:
			s.warned = true
			events = append(events, Event{UserID: userID, Kind: EventWarned, Idle: idle, At: now})
		}
	}
	for _, ev := range events {
		for _, ch := range t.subscribers {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Run sweeps on a ticker until the context ends.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}
