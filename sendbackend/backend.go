// Package sendbackend is the rate-limited send abstraction the
// scheduler dispatches through. It never opens a real SMTP connection
// here — wiring actual transport is left to the enclosing service —
// but it faithfully reproduces the anti-spam envelope, latency
// variance and distinct failure modes the scheduler depends on.
package sendbackend

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sendwave/campaignsched/internal/ratelimit"
)

// MessageID identifies a message accepted for delivery.
type MessageID string

// Distinct, stable error values the scheduler can classify without
// string-matching. Wrapped with context via pkg/errors before being
// surfaced in Job.Error.
var (
	ErrAntiSpam        = errors.New("anti-spam: sender rate envelope exceeded")
	ErrMailboxFull     = errors.New("mailbox full")
	ErrTransientServer = errors.New("transient server error")
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrSpamFilterBlock = errors.New("blocked by spam filter")
)

// Config tunes the simulated dispatch path.
type Config struct {
	MinLatency         time.Duration
	MaxLatency         time.Duration
	SuccessProbability float64 // default ~0.95
	PerSenderPerMinute int     // Lm
	PerSenderPerHour   int     // Lh
}

// DefaultConfig mirrors the spec's defaults.
func DefaultConfig() Config {
	return Config{
		MinLatency:         100 * time.Millisecond,
		MaxLatency:         1000 * time.Millisecond,
		SuccessProbability: 0.95,
		PerSenderPerMinute: 60,
		PerSenderPerHour:   1000,
	}
}

// NowFunc lets tests substitute a deterministic clock for the envelope
// check without needing to also control simulated latency.
type NowFunc func() time.Time

// MetricsSink receives backend-observed events the enclosing service
// wants counted. Optional; without WithMetrics, New installs a sink that
// discards them.
type MetricsSink interface {
	RecordRateLimitRejection()
}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordRateLimitRejection() {}

// Backend is the send-backend contract: send(senderId, recipientId,
// subject, body) -> Result<MessageId, Error>.
type Backend struct {
	cfg      Config
	envelope *ratelimit.Envelope
	now      NowFunc
	metrics  MetricsSink
	rngMu    sync.Mutex
	rng      *rand.Rand
}

// New creates a Backend with its own anti-spam envelope.
func New(cfg Config) *Backend {
	if cfg.SuccessProbability == 0 {
		cfg.SuccessProbability = DefaultConfig().SuccessProbability
	}
	return &Backend{
		cfg:      cfg,
		envelope: ratelimit.NewEnvelope(cfg.PerSenderPerMinute, cfg.PerSenderPerHour),
		now:      time.Now,
		metrics:  noopMetricsSink{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the time source the anti-spam envelope checks
// against. Used by tests that need deterministic rate-envelope
// collisions without sleeping for real wall-clock minutes.
func (b *Backend) WithClock(now NowFunc) *Backend {
	b.now = now
	return b
}

// WithMetrics wires a MetricsSink to receive rate-limit rejection
// counts. Optional; omit it and rejections are simply not counted.
func (b *Backend) WithMetrics(sink MetricsSink) *Backend {
	b.metrics = sink
	return b
}

// Send simulates dispatching one message. It blocks for a latency drawn
// from [MinLatency, MaxLatency), raised to the sender's pacer reservation
// delay when that is longer, then returns a MessageID on success or a
// typed error on failure. Rejections from the anti-spam envelope are
// returned immediately, without the latency delay, since no network
// call is attempted.
func (b *Backend) Send(ctx context.Context, senderID, recipientID, subject, body string) (MessageID, error) {
	if !b.envelope.Allow(senderID, b.now()) {
		b.metrics.RecordRateLimitRejection()
		return "", errors.Wrapf(ErrAntiSpam, "sender %s", senderID)
	}

	delay := b.jitterLatency()
	now := b.now()
	if d := b.envelope.Pacer(senderID).ReserveN(now, 1).DelayFrom(now); d > delay {
		delay = d
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if !b.succeeds() {
		return "", b.simulatedFailure(recipientID)
	}

	return MessageID(fmt.Sprintf("%s:%s:%d", senderID, recipientID, b.now().UnixNano())), nil
}

func (b *Backend) jitterLatency() time.Duration {
	lo, hi := b.cfg.MinLatency, b.cfg.MaxLatency
	if hi <= lo {
		return lo
	}
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	span := hi - lo
	return lo + time.Duration(b.rng.Int63n(int64(span)))
}

func (b *Backend) succeeds() bool {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64() < b.cfg.SuccessProbability
}

// simulatedFailure picks one of the four distinct failure modes the
// spec requires, weighted so invalid-recipient dominates for
// obviously-malformed addresses.
func (b *Backend) simulatedFailure(recipientID string) error {
	if recipientID == "" {
		return errors.Wrap(ErrInvalidRecipient, "empty recipient id")
	}

	b.rngMu.Lock()
	pick := b.rng.Intn(3)
	b.rngMu.Unlock()

	switch pick {
	case 0:
		return errors.Wrapf(ErrMailboxFull, "recipient %s", recipientID)
	case 1:
		return errors.Wrap(ErrTransientServer, "upstream MTA")
	default:
		return errors.Wrapf(ErrSpamFilterBlock, "recipient %s", recipientID)
	}
}

// Reset clears all anti-spam envelope state. Mirrors the scheduler's
// administrative Reset().
func (b *Backend) Reset() {
	b.envelope.Reset()
}
