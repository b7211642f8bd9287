package model

import "testing"

func TestValidateRunTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RunStatus
		to      RunStatus
		wantErr bool
	}{
		{"retry keeps waiting", RunStatusWaiting, RunStatusWaiting, false},
		{"waiting to succeeded", RunStatusWaiting, RunStatusSucceeded, false},
		{"succeeded is terminal", RunStatusSucceeded, RunStatusWaiting, true},
		{"unknown status", RunStatus("bogus"), RunStatusWaiting, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRunTransition(%q, %q) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestValidateGateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    GatePhase
		to      GatePhase
		wantErr bool
	}{
		{"re-assert hidden", GatePhaseSuppressed, GatePhaseSuppressed, false},
		{"suppressed to released", GatePhaseSuppressed, GatePhaseReleased, false},
		{"released is one-way", GatePhaseReleased, GatePhaseSuppressed, true},
		{"unknown phase", GatePhase("bogus"), GatePhaseReleased, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGateTransition(%q, %q) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestTerminalHelpers(t *testing.T) {
	if IsRunTerminal(RunStatusWaiting) {
		t.Error("waiting should not be terminal")
	}
	if !IsRunTerminal(RunStatusSucceeded) {
		t.Error("succeeded should be terminal")
	}
	if IsGateTerminal(GatePhaseSuppressed) {
		t.Error("suppressed should not be terminal")
	}
	if !IsGateTerminal(GatePhaseReleased) {
		t.Error("released should be terminal")
	}
}
