package robot

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-rebel/internal/log"
)

// Dead-zone thresholds. A position closer than this to the last one sent is
// not reported again until the next heartbeat.
const (
	DeadZoneJointDeg   = 0.3
	DeadZoneGripperPct = 0.5
)

// DefaultHeartbeat is how many quiet ticks pass before the position is
// reported anyway.
const DefaultHeartbeat = 25

// Stats are reporter counters.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
	Errors    uint64 `json:"errors"`
}

// Reporter polls an arm at a fixed rate and publishes positions that moved
// past the dead zone.
type Reporter struct {
	arm       PositionReader
	rate      time.Duration
	heartbeat uint64
	publish   func(Position)
	logger    *slog.Logger

	mu       sync.Mutex
	lastSent Position
	sentOnce bool
	force    bool
	quiet    uint64
	stats    Stats
	lastErr  time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewReporter creates a reporter that calls publish at most once per rate.
func NewReporter(arm PositionReader, rate time.Duration, publish func(Position)) *Reporter {
	return &Reporter{
		arm:       arm,
		rate:      rate,
		heartbeat: DefaultHeartbeat,
		publish:   publish,
		logger:    log.With("component", "reporter"),
		stop:      make(chan struct{}),
	}
}

// Force makes the next tick publish regardless of the dead zone.
func (r *Reporter) Force() {
	r.mu.Lock()
	r.force = true
	r.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (r *Reporter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run polls until Stop is called.
func (r *Reporter) Run() {
	ticker := time.NewTicker(r.rate)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// Stop halts Run. Safe to call more than once.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Reporter) tick() {
	if r.arm == nil {
		return
	}

	pos, err := r.arm.Position()

	r.mu.Lock()
	r.stats.Ticks++
	if err != nil {
		r.stats.Errors++
		if r.lastErr.IsZero() || time.Since(r.lastErr) > 5*time.Second {
			r.logger.Warn("position read failed", "error", err, "errors", r.stats.Errors)
			r.lastErr = time.Now()
		}
		r.mu.Unlock()
		return
	}

	r.quiet++
	if r.sentOnce && !r.force && r.quiet < r.heartbeat && !moved(r.lastSent, pos) {
		r.stats.Skipped++
		r.mu.Unlock()
		return
	}

	r.lastSent = pos
	r.sentOnce = true
	r.force = false
	r.quiet = 0
	r.stats.Published++
	publish := r.publish
	r.mu.Unlock()

	if publish != nil {
		publish(pos)
	}
}

func moved(a, b Position) bool {
	for i := range a.Joints {
		if math.Abs(a.Joints[i]-b.Joints[i]) >= DeadZoneJointDeg {
			return true
		}
	}
	return math.Abs(a.Gripper-b.Gripper) >= DeadZoneGripperPct
}
