package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casllmproject/bending-effect/internal/advance"
	"github.com/casllmproject/bending-effect/internal/model"
	"github.com/casllmproject/bending-effect/internal/sink"
)

// Generator produces one attempt outcome for a snapshot.
type Generator interface {
	Generate(ctx context.Context, snap model.Snapshot) model.Outcome
}

// Fetcher owns the unbounded retry loop against the generation endpoint.
// Attempts are strictly sequential; the next one is scheduled a fixed delay
// after the previous one resolves. Only success ends the loop. The loop is a
// rescheduled timer wait, not recursion, so its stack stays constant no
// matter how long it retries.
type Fetcher struct {
	generator  Generator
	store      *sink.Store
	trigger    *advance.Trigger
	countdown  *Countdown
	retryDelay time.Duration

	logger   *log.Logger
	logLevel LogLevel

	attempts atomic.Int64

	mu     sync.Mutex
	status model.RunStatus
}

func NewFetcher(
	generator Generator,
	store *sink.Store,
	trigger *advance.Trigger,
	countdown *Countdown,
	retryDelay time.Duration,
	logger *log.Logger,
	logLevel LogLevel,
) *Fetcher {
	return &Fetcher{
		generator:  generator,
		store:      store,
		trigger:    trigger,
		countdown:  countdown,
		retryDelay: retryDelay,
		logger:     logger,
		logLevel:   logLevel,
		status:     model.RunStatusWaiting,
	}
}

// Run attempts generation until the first success or ctx cancellation. The
// snapshot is cloned once up front; every attempt sends the identical data.
// Attempt failures never surface as errors, only ctx cancellation and a
// failure to commit or advance after success do.
func (f *Fetcher) Run(ctx context.Context, snap model.Snapshot) error {
	snap = snap.Clone()

	for attempt := 1; ; attempt++ {
		f.attempts.Store(int64(attempt))
		f.log(LogLevelDebug, "attempt_start attempt=%d", attempt)

		outcome := f.generator.Generate(ctx, snap)
		if outcome.Kind == model.OutcomeSuccess {
			f.log(LogLevelInfo, "attempt_succeeded attempt=%d headline_len=%d body_len=%d",
				attempt, len(outcome.Headline), len(outcome.Body))
			return f.finish(outcome)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.log(LogLevelWarn, "attempt_failed attempt=%d kind=%s status=%d message=%q",
			attempt, outcome.Kind, outcome.Status, outcome.Message)

		// Transient error pair: overwritten by the next attempt or by
		// eventual success. A sink write failure is logged, never fatal.
		if err := f.store.Commit(map[string]string{
			sink.KeyHeadline: "Error",
			sink.KeyBody:     outcome.Describe(),
		}); err != nil {
			f.log(LogLevelError, "error_commit attempt=%d error=%v", attempt, err)
		}

		timer := time.NewTimer(f.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// finish runs the success sequence exactly once: terminal countdown display,
// result commit, advance trigger.
func (f *Fetcher) finish(o model.Outcome) error {
	if f.countdown != nil {
		f.countdown.Stop("Success!")
	}

	pairs := map[string]string{
		sink.KeyHeadline: o.Headline,
		sink.KeyBody:     o.Body,
		sink.KeyRaw:      string(o.Raw),
	}
	if o.Persona != "" {
		pairs[sink.KeyPersona] = o.Persona
	}
	if err := f.store.Commit(pairs); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}

	if err := f.trigger.Fire(); err != nil {
		return fmt.Errorf("fire advance trigger: %w", err)
	}

	f.setStatus(model.RunStatusSucceeded)
	f.log(LogLevelInfo, "run_succeeded attempts=%d", f.attempts.Load())
	return nil
}

// Attempts returns the number of attempts started so far.
func (f *Fetcher) Attempts() int64 {
	return f.attempts.Load()
}

// Status returns the current run status.
func (f *Fetcher) Status() model.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Fetcher) setStatus(to model.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := model.ValidateRunTransition(f.status, to); err != nil {
		f.log(LogLevelWarn, "status_transition error=%v", err)
		return
	}
	f.status = to
}

func (f *Fetcher) log(level LogLevel, format string, args ...any) {
	if level < f.logLevel || f.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	f.logger.Printf("%s %s fetcher: %s", time.Now().Format(time.RFC3339), level, msg)
}
