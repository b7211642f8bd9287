package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/casllmproject/bending-effect/internal/lock"
	"github.com/casllmproject/bending-effect/internal/model"
	"github.com/casllmproject/bending-effect/internal/yaml"
)

// ProceedText is the terminal status line once the suppression window ends.
const ProceedText = "You may now proceed."

// Gate suppresses the navigation control for a fixed window. The control's
// visibility lives in control/next.yaml, which the survey host may rewrite at
// any time; the gate observes every write and re-asserts hidden until the
// deadline. The reveal itself belongs solely to the deadline path: the
// observer is disconnected and drained before the control is shown, so a
// queued event can never re-hide it afterwards.
type Gate struct {
	sessionDir  string
	controlPath string
	duration    time.Duration
	countdown   *Countdown

	lockMap  *lock.MutexMap
	logger   *log.Logger
	logLevel LogLevel

	watcher  *fsnotify.Watcher
	deadline time.Time
	wg       sync.WaitGroup

	interventions atomic.Int64

	mu    sync.Mutex
	phase model.GatePhase
}

func NewGate(
	sessionDir string,
	duration time.Duration,
	countdown *Countdown,
	lockMap *lock.MutexMap,
	logger *log.Logger,
	logLevel LogLevel,
) *Gate {
	return &Gate{
		sessionDir:  sessionDir,
		controlPath: filepath.Join(sessionDir, "control", "next.yaml"),
		duration:    duration,
		countdown:   countdown,
		lockMap:     lockMap,
		logger:      logger,
		logLevel:    logLevel,
		phase:       model.GatePhaseSuppressed,
	}
}

func (g *Gate) ControlPath() string {
	return g.controlPath
}

// Guard hides the control, starts the observer and the status countdown, and
// blocks until the deadline reveals the control (or ctx is cancelled).
func (g *Gate) Guard(ctx context.Context) error {
	g.deadline = time.Now().Add(g.duration)

	if err := os.MkdirAll(filepath.Dir(g.controlPath), 0755); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := g.writeControl(false); err != nil {
		return fmt.Errorf("initial hide: %w", err)
	}
	g.log(LogLevelInfo, "gate_engaged duration=%s control=%s", g.duration, g.controlPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	g.watcher = watcher
	if err := watcher.Add(filepath.Dir(g.controlPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch control dir: %w", err)
	}

	if g.countdown != nil {
		g.countdown.Start(ctx)
	}

	g.wg.Add(1)
	go g.watchLoop(ctx)

	timer := time.NewTimer(g.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		watcher.Close()
		g.wg.Wait()
		return ctx.Err()
	case <-timer.C:
	}

	// Deadline: disconnect the observer and join its goroutine before
	// revealing, so the reveal cannot race a re-hide.
	watcher.Close()
	g.wg.Wait()

	if err := g.writeControl(true); err != nil {
		return fmt.Errorf("reveal control: %w", err)
	}
	g.setPhase(model.GatePhaseReleased)
	if g.countdown != nil {
		g.countdown.Stop(ProceedText)
	}
	g.log(LogLevelInfo, "gate_released interventions=%d", g.interventions.Load())
	return nil
}

// watchLoop reconciles on every control-file change until the watcher is
// closed.
func (g *Gate) watchLoop(ctx context.Context) {
	defer g.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			if event.Name != g.controlPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			g.log(LogLevelDebug, "control event=%s", event.Op)
			g.reconcile()
		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			g.log(LogLevelError, "watch error=%v", err)
		}
	}
}

// reconcile re-asserts hidden when an external write made the control visible
// before the deadline. The corrective write is idempotent; reconciling our
// own writes is a no-op.
func (g *Gate) reconcile() {
	if !time.Now().Before(g.deadline) {
		// The deadline path owns the reveal.
		return
	}

	state, err := g.readControl()
	if err != nil {
		g.log(LogLevelWarn, "control read error=%v, re-asserting hidden", err)
		if werr := g.writeControl(false); werr != nil {
			g.log(LogLevelError, "re-hide error=%v", werr)
		}
		return
	}

	if !state.Visible {
		return
	}

	if err := g.writeControl(false); err != nil {
		g.log(LogLevelError, "re-hide error=%v", err)
		return
	}
	n := g.interventions.Add(1)
	g.log(LogLevelInfo, "gate_intervened count=%d updated_by=%q", n, state.UpdatedBy)
}

func (g *Gate) writeControl(visible bool) error {
	lockKey := "control:" + g.controlPath
	g.lockMap.Lock(lockKey)
	defer g.lockMap.Unlock(lockKey)

	state := model.ControlFile{
		SchemaVersion: yaml.CurrentSchemaVersion,
		FileType:      model.ControlFileType,
		Visible:       visible,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
		UpdatedBy:     "gate",
	}
	return yaml.AtomicWrite(g.controlPath, state)
}

func (g *Gate) readControl() (model.ControlFile, error) {
	var state model.ControlFile
	err := yaml.Load(g.controlPath, &state)
	return state, err
}

// Phase returns the current gate phase.
func (g *Gate) Phase() model.GatePhase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Interventions returns how many external reveals the gate has undone.
func (g *Gate) Interventions() int64 {
	return g.interventions.Load()
}

func (g *Gate) setPhase(to model.GatePhase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := model.ValidateGateTransition(g.phase, to); err != nil {
		g.log(LogLevelWarn, "phase_transition error=%v", err)
		return
	}
	g.phase = to
}

func (g *Gate) log(level LogLevel, format string, args ...any) {
	if level < g.logLevel || g.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	g.logger.Printf("%s %s gate: %s", time.Now().Format(time.RFC3339), level, msg)
}
