package model

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timing.AttemptTimeoutSec != 20 {
		t.Errorf("AttemptTimeoutSec = %d, want 20", cfg.Timing.AttemptTimeoutSec)
	}
	if cfg.Timing.RetryDelaySec != 5 {
		t.Errorf("RetryDelaySec = %d, want 5", cfg.Timing.RetryDelaySec)
	}
	if cfg.Timing.GenerateCountdownSec != 60 {
		t.Errorf("GenerateCountdownSec = %d, want 60", cfg.Timing.GenerateCountdownSec)
	}
	if cfg.Timing.GateSuppressSec != 40 {
		t.Errorf("GateSuppressSec = %d, want 40", cfg.Timing.GateSuppressSec)
	}
	if cfg.Timing.TickMs != 1000 {
		t.Errorf("TickMs = %d, want 1000", cfg.Timing.TickMs)
	}
}

func TestApplyDefaults_PartialConfig(t *testing.T) {
	cfg := Config{}
	cfg.Timing.RetryDelaySec = 2
	cfg.ApplyDefaults()

	if cfg.Timing.RetryDelaySec != 2 {
		t.Errorf("override lost: RetryDelaySec = %d, want 2", cfg.Timing.RetryDelaySec)
	}
	if cfg.Timing.AttemptTimeoutSec != 20 {
		t.Errorf("default not applied: AttemptTimeoutSec = %d, want 20", cfg.Timing.AttemptTimeoutSec)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default not applied: Level = %q, want info", cfg.Logging.Level)
	}
}

func TestSnapshot_Immutability(t *testing.T) {
	source := map[string]string{"DEM1": "1", "DEM2": "34"}
	snap := NewSnapshot(source)

	source["DEM1"] = "2"
	if snap["DEM1"] != "1" {
		t.Errorf("snapshot mutated through source map: DEM1 = %q", snap["DEM1"])
	}

	clone := snap.Clone()
	clone["DEM2"] = "99"
	if snap["DEM2"] != "34" {
		t.Errorf("snapshot mutated through clone: DEM2 = %q", snap["DEM2"])
	}
}

func TestSnapshot_Fingerprint(t *testing.T) {
	a := NewSnapshot(map[string]string{"DEM1": "1", "VOT2": "2"})
	b := NewSnapshot(map[string]string{"VOT2": "2", "DEM1": "1"})
	c := NewSnapshot(map[string]string{"DEM1": "2", "VOT2": "2"})

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should not depend on insertion order")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different values should give different fingerprints")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a.Fingerprint()))
	}
}

func TestOutcome_Retryable(t *testing.T) {
	for _, kind := range []OutcomeKind{OutcomeServerError, OutcomeTimeout, OutcomeNetworkError, OutcomeIncomplete} {
		if !(Outcome{Kind: kind}).Retryable() {
			t.Errorf("%s should be retryable", kind)
		}
	}
	if (Outcome{Kind: OutcomeSuccess}).Retryable() {
		t.Error("success should not be retryable")
	}
}

func TestOutcome_Describe(t *testing.T) {
	o := Outcome{Kind: OutcomeServerError, Status: 500, Message: "down"}
	if got := o.Describe(); !strings.Contains(got, "down") {
		t.Errorf("Describe() = %q, want the server message included", got)
	}

	for _, kind := range []OutcomeKind{OutcomeTimeout, OutcomeNetworkError, OutcomeIncomplete} {
		got := (Outcome{Kind: kind}).Describe()
		if !strings.Contains(got, "Retrying") {
			t.Errorf("Describe(%s) = %q, want retrying language", kind, got)
		}
	}
}
