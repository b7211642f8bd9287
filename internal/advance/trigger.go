// Package advance implements the one-shot navigation trigger: the "advance"
// signal the survey host watches for to move the participant to the next
// page.
package advance

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casllmproject/bending-effect/internal/yaml"
)

const FileType = "advance"

type Marker struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
	Advanced      bool   `yaml:"advanced"`
	AdvancedAt    string `yaml:"advanced_at"`
}

// Trigger writes <sessionDir>/advance/advance.yaml at most once. Firing it
// again, from any goroutine, is a safe no-op: the latch guards against the
// race between a late-resolving attempt and a fresh success.
type Trigger struct {
	path  string
	once  sync.Once
	fired atomic.Bool
	err   error
}

func NewTrigger(sessionDir string) *Trigger {
	return &Trigger{path: filepath.Join(sessionDir, "advance", "advance.yaml")}
}

func (t *Trigger) Path() string {
	return t.path
}

// Fire signals the host to advance. Only the first call writes; subsequent
// calls return the first call's result.
func (t *Trigger) Fire() error {
	t.once.Do(func() {
		// A marker left by an earlier runner counts as already fired.
		if _, err := os.Stat(t.path); err == nil {
			t.fired.Store(true)
			return
		}

		if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
			t.err = fmt.Errorf("create advance dir: %w", err)
			return
		}
		marker := Marker{
			SchemaVersion: yaml.CurrentSchemaVersion,
			FileType:      FileType,
			Advanced:      true,
			AdvancedAt:    time.Now().UTC().Format(time.RFC3339),
		}
		if err := yaml.AtomicWrite(t.path, marker); err != nil {
			t.err = fmt.Errorf("write advance marker: %w", err)
			return
		}
		t.fired.Store(true)
	})
	return t.err
}

// Fired reports whether the trigger has been fired by this process (or a
// marker was already present when it fired).
func (t *Trigger) Fired() bool {
	return t.fired.Load()
}
