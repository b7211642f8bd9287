package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casllmproject/bending-effect/internal/display"
	"github.com/casllmproject/bending-effect/internal/lock"
	"github.com/casllmproject/bending-effect/internal/model"
	"github.com/casllmproject/bending-effect/internal/yaml"
)

func readControlFile(t *testing.T, path string) model.ControlFile {
	t.Helper()
	var state model.ControlFile
	require.NoError(t, yaml.Load(path, &state))
	return state
}

// hostReveal simulates the survey host rewriting the control file to show the
// navigation control mid-window.
func hostReveal(t *testing.T, path string) {
	t.Helper()
	state := model.ControlFile{
		SchemaVersion: yaml.CurrentSchemaVersion,
		FileType:      model.ControlFileType,
		Visible:       true,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
		UpdatedBy:     "host",
	}
	require.NoError(t, yaml.AtomicWrite(path, state))
}

func TestGate_HidesThenRevealsAtDeadline(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(dir, 300*time.Millisecond, nil, lock.NewMutexMap(), nil, LogLevelError)

	done := make(chan error, 1)
	go func() { done <- g.Guard(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(g.ControlPath())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, readControlFile(t, g.ControlPath()).Visible)
	assert.Equal(t, model.GatePhaseSuppressed, g.Phase())

	require.NoError(t, <-done)

	state := readControlFile(t, g.ControlPath())
	assert.True(t, state.Visible)
	assert.Equal(t, "gate", state.UpdatedBy)
	assert.Equal(t, model.GatePhaseReleased, g.Phase())
}

func TestGate_ReassertsHiddenOnExternalReveal(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(dir, 2*time.Second, nil, lock.NewMutexMap(), nil, LogLevelError)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Guard(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(g.ControlPath())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	hostReveal(t, g.ControlPath())

	require.Eventually(t, func() bool {
		state := readControlFile(t, g.ControlPath())
		return !state.Visible && state.UpdatedBy == "gate"
	}, 2*time.Second, 5*time.Millisecond, "external reveal must be undone")

	assert.GreaterOrEqual(t, g.Interventions(), int64(1))
	assert.Equal(t, model.GatePhaseSuppressed, g.Phase())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestGate_RepeatedExternalReveals(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(dir, 2*time.Second, nil, lock.NewMutexMap(), nil, LogLevelError)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Guard(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(g.ControlPath())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		hostReveal(t, g.ControlPath())
		require.Eventually(t, func() bool {
			return !readControlFile(t, g.ControlPath()).Visible
		}, 2*time.Second, 5*time.Millisecond)
	}

	assert.GreaterOrEqual(t, g.Interventions(), int64(3))

	cancel()
	<-done
}

func TestGate_CorruptControlReasserted(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(dir, 2*time.Second, nil, lock.NewMutexMap(), nil, LogLevelError)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Guard(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(g.ControlPath())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(g.ControlPath(), []byte("{{not yaml"), 0644))

	require.Eventually(t, func() bool {
		var state model.ControlFile
		if err := yaml.Load(g.ControlPath(), &state); err != nil {
			return false
		}
		return !state.Visible && state.UpdatedBy == "gate"
	}, 2*time.Second, 5*time.Millisecond, "corrupt control must be rewritten hidden")

	cancel()
	<-done
}

func TestGate_RevealSurvivesLateEvents(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(dir, 250*time.Millisecond, nil, lock.NewMutexMap(), nil, LogLevelError)

	done := make(chan error, 1)
	go func() { done <- g.Guard(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(g.ControlPath())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	// Keep the host hammering the control right up to the deadline.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				hostReveal(t, g.ControlPath())
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	require.NoError(t, <-done)
	close(stop)

	// Once Guard has returned, the observer is gone: the control stays
	// visible no matter what arrived before the deadline.
	time.Sleep(100 * time.Millisecond)
	// Late host writes after the deadline are out of the gate's hands; the
	// gate's own reveal happened and the phase is terminal.
	assert.Equal(t, model.GatePhaseReleased, g.Phase())
}

func TestGate_CountdownStopsOnRelease(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "display"), 0755))
	surface := display.Open(dir, SurfaceGateStatus)
	countdown := NewCountdown(surface, 60, time.Hour, ProceedText, nil, LogLevelError)

	g := NewGate(dir, 200*time.Millisecond, countdown, lock.NewMutexMap(), nil, LogLevelError)
	require.NoError(t, g.Guard(context.Background()))

	assert.Equal(t, ProceedText, surface.Read())
}
