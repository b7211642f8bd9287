package session

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casllmproject/bending-effect/internal/display"
)

// Countdown drives a decrementing once-per-tick counter on a display surface.
// It is purely presentational: it never inspects the fetch outcome. At the
// floor it freezes on floorText and stops ticking entirely. Stop supersedes
// whatever the countdown is showing with a terminal message.
type Countdown struct {
	surface   *display.Surface
	total     int
	tick      time.Duration
	floorText string

	logger   *log.Logger
	logLevel LogLevel

	mu        sync.Mutex
	remaining int
	frozen    bool

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCountdown(surface *display.Surface, total int, tick time.Duration, floorText string, logger *log.Logger, logLevel LogLevel) *Countdown {
	return &Countdown{
		surface:   surface,
		total:     total,
		tick:      tick,
		floorText: floorText,
		logger:    logger,
		logLevel:  logLevel,
		remaining: total,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start shows the full total immediately and begins ticking. A nil surface
// still ticks so Remaining stays meaningful for status queries.
func (c *Countdown) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	frozen := c.frozen
	c.mu.Unlock()
	if !frozen {
		c.setText(strconv.Itoa(c.total))
	}
	go c.loop(ctx)
}

func (c *Countdown) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.frozen {
				c.mu.Unlock()
				return
			}
			c.remaining--
			rem := c.remaining
			if rem <= 0 {
				c.frozen = true
			}
			c.mu.Unlock()

			if rem <= 0 {
				// Floor reached: freeze on the waiting message, no
				// further ticks.
				c.setText(c.floorText)
				return
			}
			c.setText(strconv.Itoa(rem))
		}
	}
}

// Stop halts ticking and freezes the surface on text. Safe to call at any
// time, including before Start and after the floor has been reached.
func (c *Countdown) Stop(text string) {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.started.Load() {
		// Wait for the loop so no in-flight tick overwrites the text.
		<-c.done
	}

	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()

	c.setText(text)
}

// Remaining returns the current counter value, clamped at zero.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining < 0 {
		return 0
	}
	return c.remaining
}

func (c *Countdown) setText(text string) {
	if err := c.surface.Set(text); err != nil {
		c.log(LogLevelWarn, "countdown display write error=%v", err)
	}
}

func (c *Countdown) log(level LogLevel, format string, args ...any) {
	if level < c.logLevel || c.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("%s %s countdown: %s", time.Now().Format(time.RFC3339), level, msg)
}
