package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Resolution is the fixed-point unit of the countdown: hundredths of a second.
const Resolution = 10 * time.Millisecond

// Countdown counts a question's time limit down to zero and fires a single timeout.
// Remaining time is held in hundredths of a second so repeated ticks never drift.
type Countdown struct {
	clock    Clock
	step     int64
	interval time.Duration
	onSecond func(display int)

	mu        sync.Mutex
	remaining int64
	running   bool
	gen       int
	cancel    CancelFunc
	onTimeout func()
}

// NewCountdown builds a countdown ticking every tick (rounded down to Resolution, minimum one unit).
// onSecond, when set, is called whenever the displayed whole second changes.
func NewCountdown(clock Clock, tick time.Duration, onSecond func(display int)) *Countdown {
	step := int64(tick / Resolution)
	if step < 1 {
		step = 1
	}
	return &Countdown{
		clock:    clock,
		step:     step,
		interval: time.Duration(step) * Resolution,
		onSecond: onSecond,
	}
}

// Start resets the remaining time to limit and begins ticking, replacing any running countdown.
// onSecond is not called for the initial value.
func (c *Countdown) Start(limit time.Duration, onTimeout func()) {
	c.mu.Lock()
	c.stopLocked()
	c.gen++
	c.remaining = int64(limit / Resolution)
	c.running = true
	c.onTimeout = onTimeout
	c.scheduleLocked()
	c.mu.Unlock()
}

// Stop cancels ticking without firing the timeout. It is a no-op when not running.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Running reports whether the countdown is ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Remaining returns the remaining time in seconds with two decimal places.
func (c *Countdown) Remaining() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return decimal.New(c.remaining, -2)
}

// DisplaySeconds returns the remaining time rounded up to a whole second.
func (c *Countdown) DisplaySeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return displaySeconds(c.remaining)
}

func (c *Countdown) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
}

func (c *Countdown) scheduleLocked() {
	gen := c.gen
	c.cancel = c.clock.ScheduleAfter(c.interval, func() { c.tick(gen) })
}

func (c *Countdown) tick(gen int) {
	c.mu.Lock()
	if !c.running || gen != c.gen {
		c.mu.Unlock()
		return
	}
	before := displaySeconds(c.remaining)
	c.remaining -= c.step
	if c.remaining < 0 {
		c.remaining = 0
	}
	after := displaySeconds(c.remaining)

	var timeout func()
	if c.remaining == 0 {
		c.running = false
		c.cancel = nil
		timeout = c.onTimeout
		c.onTimeout = nil
	} else {
		c.scheduleLocked()
	}
	c.mu.Unlock()

	if c.onSecond != nil && after != before {
		c.onSecond(after)
	}
	if timeout != nil {
		timeout()
	}
}

func displaySeconds(hundredths int64) int {
	return int((hundredths + 99) / 100)
}
