package breaker

import (
	"testing"
	"time"
)

func TestClosedBelowThreshold(t *testing.T) {
	b := New(3, time.Minute)
	b.RecordFailure("example.com")
	b.RecordFailure("example.com")
	if b.IsOpen("example.com") {
		t.Error("circuit should stay closed below threshold")
	}
}

func TestOpensAtThreshold(t *testing.T) {
	b := New(3, time.Minute)
	b.RecordFailure("example.com")
	b.RecordFailure("example.com")
	b.RecordFailure("example.com")
	if !b.IsOpen("example.com") {
		t.Error("circuit should open at threshold")
	}
	if b.TimeUntilRetry("example.com") <= 0 {
		t.Error("TimeUntilRetry should be positive while open")
	}
}

func TestAutoClearsAfterCooldown(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure("example.com")
	if !b.IsOpen("example.com") {
		t.Fatal("circuit should be open immediately")
	}
	time.Sleep(20 * time.Millisecond)
	if b.IsOpen("example.com") {
		t.Error("circuit should auto-clear after cooldown")
	}
	if got := b.TimeUntilRetry("example.com"); got != 0 {
		t.Errorf("TimeUntilRetry after clear = %d, want 0", got)
	}
}

func TestFailureCountRestartsAfterAutoClear(t *testing.T) {
	b := New(2, 10*time.Millisecond)
	b.RecordFailure("example.com")
	b.RecordFailure("example.com")
	if !b.IsOpen("example.com") {
		t.Fatal("circuit should be open")
	}
	time.Sleep(20 * time.Millisecond)
	b.IsOpen("example.com") // triggers reset
	b.RecordFailure("example.com")
	if b.IsOpen("example.com") {
		t.Error("single failure after reset should not reopen a threshold-2 breaker")
	}
}

func TestRecordSuccessResetsFailures(t *testing.T) {
	b := New(3, time.Minute)
	b.RecordFailure("example.com")
	b.RecordFailure("example.com")
	b.RecordSuccess("example.com")
	b.RecordFailure("example.com")
	b.RecordFailure("example.com")
	if b.IsOpen("example.com") {
		t.Error("success should have reset the failure counter")
	}
}

func TestDomainsAreIndependent(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure("a.com")
	if b.IsOpen("b.com") {
		t.Error("domains should not share breaker state")
	}
}

func TestIsOpenUnknownDomain(t *testing.T) {
	b := New(3, time.Minute)
	if b.IsOpen("never-seen.com") {
		t.Error("unknown domain should report closed")
	}
}
