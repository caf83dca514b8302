package main

import (
	"testing"
	"time"
)

func TestMustDurationParsesValid(t *testing.T) {
	if got := mustDuration("30s"); got != 30*time.Second {
		t.Errorf("mustDuration(30s) = %v, want 30s", got)
	}
}

func TestMustDurationFallsBackOnInvalid(t *testing.T) {
	if got := mustDuration("not-a-duration"); got != 5*time.Minute {
		t.Errorf("mustDuration(invalid) = %v, want 5m fallback", got)
	}
}
