package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Snapshot is the immutable set of survey field values captured once at run
// start. Every generation attempt resends the identical snapshot.
type Snapshot map[string]string

// SessionFile is the on-disk shape of session.yaml, the source the snapshot
// is captured from.
type SessionFile struct {
	SchemaVersion int               `yaml:"schema_version"`
	FileType      string            `yaml:"file_type"`
	SessionID     string            `yaml:"session_id"`
	Fields        map[string]string `yaml:"fields"`
}

const SessionFileType = "session"

// NewSnapshot copies the given fields so later mutation of the source map
// cannot leak into in-flight attempts.
func NewSnapshot(fields map[string]string) Snapshot {
	snap := make(Snapshot, len(fields))
	for k, v := range fields {
		snap[k] = v
	}
	return snap
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(s)
}

// Fingerprint returns a stable digest of the snapshot contents, used to
// collapse duplicate in-flight generation requests.
func (s Snapshot) Fingerprint() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(s[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
