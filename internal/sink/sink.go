// Package sink implements the result sink: the session's embedded-data store
// that generated content and transient error text are committed to. Writes
// are fire-and-forget key-value commits with last-write-wins semantics; the
// survey host reads the file, this process never reads it back except to
// merge.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/casllmproject/bending-effect/internal/lock"
	"github.com/casllmproject/bending-effect/internal/yaml"
)

// Embedded-data keys the survey host expects.
const (
	KeyHeadline = "GPT_Headline"
	KeyBody     = "GPT_Body"
	KeyRaw      = "GPT_Raw_Response"
	KeyPersona  = "GPT_Persona"
)

const FileType = "embedded_data"

type DataFile struct {
	SchemaVersion int               `yaml:"schema_version"`
	FileType      string            `yaml:"file_type"`
	UpdatedAt     string            `yaml:"updated_at"`
	Data          map[string]string `yaml:"data"`
}

// Store commits key-value pairs to <sessionDir>/embedded/data.yaml.
type Store struct {
	sessionDir string
	path       string
	lockMap    *lock.MutexMap
}

func NewStore(sessionDir string, lockMap *lock.MutexMap) *Store {
	return &Store{
		sessionDir: sessionDir,
		path:       filepath.Join(sessionDir, "embedded", "data.yaml"),
		lockMap:    lockMap,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Commit merges pairs into the data file atomically. Existing keys not named
// in pairs are preserved; named keys are overwritten.
func (s *Store) Commit(pairs map[string]string) error {
	lockKey := "sink:" + s.path
	s.lockMap.Lock(lockKey)
	defer s.lockMap.Unlock(lockKey)

	df, err := s.load()
	if err != nil {
		return err
	}

	for k, v := range pairs {
		df.Data[k] = v
	}
	df.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create embedded dir: %w", err)
	}
	if err := yaml.AtomicWrite(s.path, df); err != nil {
		return fmt.Errorf("write embedded data: %w", err)
	}
	return nil
}

// load reads the current data file. A missing file yields a fresh one; a
// corrupted file is quarantined (restoring the .bak when possible) rather
// than aborting the commit.
func (s *Store) load() (*DataFile, error) {
	fresh := &DataFile{
		SchemaVersion: yaml.CurrentSchemaVersion,
		FileType:      FileType,
		Data:          make(map[string]string),
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fresh, nil
	}

	var df DataFile
	if err := yaml.Load(s.path, &df); err != nil {
		if _, qerr := yaml.Quarantine(s.sessionDir, s.path); qerr != nil {
			return nil, fmt.Errorf("quarantine corrupted data file: %w", qerr)
		}
		if rerr := yaml.RestoreFromBackup(s.path); rerr != nil {
			// No usable backup: start over.
			return fresh, nil
		}
		if err := yaml.Load(s.path, &df); err != nil {
			return fresh, nil
		}
	}

	if df.Data == nil {
		df.Data = make(map[string]string)
	}
	df.SchemaVersion = yaml.CurrentSchemaVersion
	df.FileType = FileType
	return &df, nil
}
