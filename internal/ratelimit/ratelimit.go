// Package ratelimit implements the send backend's per-sender anti-spam
// envelope: a rolling-window cap on sends in the last minute and in the
// last hour, plus an optional token-bucket pacer used to smooth
// dispatch latency within an allowed window.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Envelope enforces, per sender, a maximum number of sends in the last
// 60s and the last 3600s. Counters are cleaned lazily on each check.
type Envelope struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	windows   map[string]*senderWindow
	pacers    map[string]*rate.Limiter
}

type senderWindow struct {
	minute []time.Time
	hour   []time.Time
}

// NewEnvelope creates an anti-spam envelope. A non-positive limit means
// unlimited for that window.
func NewEnvelope(perMinute, perHour int) *Envelope {
	return &Envelope{
		perMinute: perMinute,
		perHour:   perHour,
		windows:   make(map[string]*senderWindow),
		pacers:    make(map[string]*rate.Limiter),
	}
}

// Allow reports whether sender may send one more message at `now`. On
// success it records the send; on rejection nothing is recorded.
func (e *Envelope) Allow(senderID string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.windows[senderID]
	if !ok {
		w = &senderWindow{}
		e.windows[senderID] = w
	}

	w.minute = dropBefore(w.minute, now.Add(-minuteWindow))
	w.hour = dropBefore(w.hour, now.Add(-hourWindow))

	if e.perMinute > 0 && len(w.minute) >= e.perMinute {
		return false
	}
	if e.perHour > 0 && len(w.hour) >= e.perHour {
		return false
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return true
}

func dropBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append([]time.Time(nil), ts[i:]...)
}

// Pacer returns a token-bucket limiter used to shape outbound latency
// for a sender, independent of the hard rolling-window caps above. It
// is created lazily, seeded at the sender's per-minute allowance.
func (e *Envelope) Pacer(senderID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.pacers[senderID]; ok {
		return p
	}

	limit := rate.Inf
	burst := 1
	if e.perMinute > 0 {
		limit = rate.Limit(float64(e.perMinute) / minuteWindow.Seconds())
		burst = e.perMinute
	}
	p := rate.NewLimiter(limit, burst)
	e.pacers[senderID] = p
	return p
}

// Reset clears all per-sender state. Used between tasks/tests.
func (e *Envelope) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windows = make(map[string]*senderWindow)
	e.pacers = make(map[string]*rate.Limiter)
}
