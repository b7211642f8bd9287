package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/casllmproject/bending-effect/internal/advance"
	"github.com/casllmproject/bending-effect/internal/display"
	"github.com/casllmproject/bending-effect/internal/generate"
	"github.com/casllmproject/bending-effect/internal/lock"
	"github.com/casllmproject/bending-effect/internal/model"
	"github.com/casllmproject/bending-effect/internal/sink"
	"github.com/casllmproject/bending-effect/internal/uds"
	"github.com/casllmproject/bending-effect/internal/yaml"
)

// Mode selects which page behavior the runner hosts. The two behaviors are
// independent and share no state; a session runs one at a time.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeGate     Mode = "gate"
)

// Display surface names.
const (
	SurfaceCountdown  = "countdown"
	SurfaceGateStatus = "gate_status"
)

// WaitingText is the frozen countdown message once the counter hits zero
// while the fetch is still retrying.
const WaitingText = "Still working, please wait."

const shutdownTimeout = 30 * time.Second

// StatusReport is the payload of the UDS "status" command.
type StatusReport struct {
	Mode               string `json:"mode"`
	RunStatus          string `json:"run_status,omitempty"`
	Attempts           int64  `json:"attempts,omitempty"`
	CountdownRemaining int    `json:"countdown_remaining"`
	GatePhase          string `json:"gate_phase,omitempty"`
	Interventions      int64  `json:"interventions,omitempty"`
	Advanced           bool   `json:"advanced"`
}

// Runner owns the lifecycle of one page behavior: session lock, leveled log,
// UDS server, and the behavior's goroutines.
type Runner struct {
	sessionDir string
	mode       Mode
	config     model.Config
	logLevel   LogLevel
	logger     *log.Logger
	logFile    io.Closer

	sessionLock *lock.SessionLock
	lockMap     *lock.MutexMap
	server      *uds.Server

	trigger   *advance.Trigger
	fetcher   *Fetcher
	countdown *Countdown
	gate      *Gate

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once

	mu          sync.Mutex
	behaviorErr error
}

// New creates a Runner logging to <sessionDir>/logs/session.log.
func New(sessionDir string, mode Mode, cfg model.Config) (*Runner, error) {
	logPath := filepath.Join(sessionDir, "logs", "session.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	return newRunner(sessionDir, mode, cfg, logFile, logFile)
}

// newRunner is the internal constructor for testing.
func newRunner(sessionDir string, mode Mode, cfg model.Config, w io.Writer, closer io.Closer) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		sessionDir:  sessionDir,
		mode:        mode,
		config:      cfg,
		logLevel:    ParseLogLevel(cfg.Logging.Level),
		logger:      log.New(w, "", 0),
		logFile:     closer,
		sessionLock: lock.NewSessionLock(filepath.Join(sessionDir, "locks", "session.lock")),
		lockMap:     lock.NewMutexMap(),
		server:      uds.NewServer(filepath.Join(sessionDir, uds.DefaultSocketName)),
		trigger:     advance.NewTrigger(sessionDir),
		ctx:         ctx,
		cancel:      cancel,
	}
	return r, nil
}

// LoadConfig reads <sessionDir>/config.yaml, falling back to the fixed
// production timings when the file or individual fields are absent.
func LoadConfig(sessionDir string) (model.Config, error) {
	cfg := model.DefaultConfig()
	path := filepath.Join(sessionDir, "config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var loaded model.Config
	if err := yaml.Load(path, &loaded); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	loaded.ApplyDefaults()
	return loaded, nil
}

// LoadSnapshot captures the immutable request snapshot from session.yaml.
func LoadSnapshot(sessionDir string) (model.Snapshot, error) {
	path := filepath.Join(sessionDir, "session.yaml")
	if err := yaml.ValidateSchemaHeader(path, model.SessionFileType); err != nil {
		return nil, fmt.Errorf("session file: %w", err)
	}
	var sf model.SessionFile
	if err := yaml.Load(path, &sf); err != nil {
		return nil, fmt.Errorf("session file: %w", err)
	}
	return model.NewSnapshot(sf.Fields), nil
}

// Run starts the behavior and blocks until it completes or a shutdown signal
// arrives.
func (r *Runner) Run() error {
	if err := os.MkdirAll(filepath.Join(r.sessionDir, "locks"), 0755); err != nil {
		return fmt.Errorf("create locks dir: %w", err)
	}
	if err := r.sessionLock.TryLock(); err != nil {
		return fmt.Errorf("session lock: %w", err)
	}
	r.log(LogLevelInfo, "runner starting mode=%s pid=%d", r.mode, os.Getpid())

	tick := time.Duration(r.config.Timing.TickMs) * time.Millisecond

	switch r.mode {
	case ModeGenerate:
		if r.config.Endpoint.URL == "" {
			r.cleanup()
			return fmt.Errorf("endpoint url not configured")
		}
		snap, err := LoadSnapshot(r.sessionDir)
		if err != nil {
			r.cleanup()
			return err
		}

		surface := display.Open(r.sessionDir, SurfaceCountdown)
		r.countdown = NewCountdown(surface, r.config.Timing.GenerateCountdownSec, tick, WaitingText, r.logger, r.logLevel)

		store := sink.NewStore(r.sessionDir, r.lockMap)
		client := generate.NewClient(
			r.config.Endpoint.URL,
			time.Duration(r.config.Timing.AttemptTimeoutSec)*time.Second,
		)
		r.fetcher = NewFetcher(
			client, store, r.trigger, r.countdown,
			time.Duration(r.config.Timing.RetryDelaySec)*time.Second,
			r.logger, r.logLevel,
		)

		r.registerHandlers()
		if err := r.server.Start(); err != nil {
			r.cleanup()
			return fmt.Errorf("start UDS server: %w", err)
		}

		// Countdown and fetch start immediately and in parallel.
		r.countdown.Start(r.ctx)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			err := r.fetcher.Run(r.ctx, snap)
			r.setBehaviorErr(err)
			go r.Shutdown()
		}()

	case ModeGate:
		surface := display.Open(r.sessionDir, SurfaceGateStatus)
		r.countdown = NewCountdown(surface, r.config.Timing.GateSuppressSec, tick, ProceedText, r.logger, r.logLevel)
		r.gate = NewGate(
			r.sessionDir,
			time.Duration(r.config.Timing.GateSuppressSec)*time.Second,
			r.countdown, r.lockMap, r.logger, r.logLevel,
		)

		r.registerHandlers()
		if err := r.server.Start(); err != nil {
			r.cleanup()
			return fmt.Errorf("start UDS server: %w", err)
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			err := r.gate.Guard(r.ctx)
			r.setBehaviorErr(err)
			go r.Shutdown()
		}()

	default:
		r.cleanup()
		return fmt.Errorf("unknown mode %q", r.mode)
	}

	r.log(LogLevelInfo, "runner ready")
	r.waitSignals()
	r.Shutdown()
	return r.BehaviorErr()
}

// registerHandlers registers UDS request handlers.
func (r *Runner) registerHandlers() {
	r.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	r.server.Handle("status", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(r.statusReport())
	})

	r.server.Handle("advance", func(req *uds.Request) *uds.Response {
		if err := r.trigger.Fire(); err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		return uds.SuccessResponse(map[string]bool{"advanced": true})
	})

	r.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		r.log(LogLevelInfo, "shutdown requested via UDS")
		go r.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

func (r *Runner) statusReport() StatusReport {
	report := StatusReport{
		Mode:     string(r.mode),
		Advanced: r.trigger.Fired(),
	}
	if r.countdown != nil {
		report.CountdownRemaining = r.countdown.Remaining()
	}
	if r.fetcher != nil {
		report.RunStatus = string(r.fetcher.Status())
		report.Attempts = r.fetcher.Attempts()
	}
	if r.gate != nil {
		report.GatePhase = string(r.gate.Phase())
		report.Interventions = r.gate.Interventions()
	}
	return report
}

// waitSignals blocks until a shutdown signal arrives or the behavior
// completes.
func (r *Runner) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		r.log(LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)
		// Second signal → force exit
		go func() {
			<-sigCh
			r.log(LogLevelWarn, "received second signal, forcing exit")
			os.Exit(1)
		}()
		r.Shutdown()
	case <-r.ctx.Done():
	}
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (r *Runner) Shutdown() {
	r.shutdown.Do(func() {
		r.log(LogLevelInfo, "shutdown started")

		// 1. Cancel context (stops the behavior loops)
		r.cancel()

		// 2. Stop the IPC server
		if r.server != nil {
			r.server.Stop()
		}

		// 3. Drain in-flight goroutines with timeout
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.log(LogLevelInfo, "all goroutines drained")
		case <-time.After(shutdownTimeout):
			r.log(LogLevelWarn, "shutdown timeout after %s, some operations may be incomplete", shutdownTimeout)
		}

		// 4. Cleanup
		r.cleanup()
		r.log(LogLevelInfo, "runner stopped")
	})
}

// BehaviorErr returns the behavior's result, with cancellation filtered out:
// a shutdown mid-retry is a normal exit, not a failure.
func (r *Runner) BehaviorErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errors.Is(r.behaviorErr, context.Canceled) {
		return nil
	}
	return r.behaviorErr
}

func (r *Runner) setBehaviorErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.behaviorErr = err
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log(LogLevelError, "behavior error=%v", err)
	}
}

// cleanup releases resources.
func (r *Runner) cleanup() {
	os.Remove(filepath.Join(r.sessionDir, uds.DefaultSocketName))
	r.sessionLock.Unlock()
	if r.logFile != nil {
		r.logFile.Close()
	}
}

func (r *Runner) log(level LogLevel, format string, args ...any) {
	if level < r.logLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	r.logger.Printf("%s %s runner: %s", time.Now().Format(time.RFC3339), level, msg)
}
