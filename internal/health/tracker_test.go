package health_test

import (
	"testing"
	"time"

	"github.com/lismorewater/flowmon/internal/health"
)

func TestTracker_HealthyUntilThreshold(t *testing.T) {
	tr := health.NewTracker(3, time.Hour)
	tr.Register("FIT100")

	tr.RecordFailure("FIT100")
	tr.RecordFailure("FIT100")

	if got := tr.Status("FIT100").State; got != health.StateHealthy {
		t.Errorf("State below threshold = %s, want HEALTHY", got)
	}

	tr.RecordFailure("FIT100")
	if got := tr.Status("FIT100").State; got != health.StateUnhealthy {
		t.Errorf("State at threshold = %s, want UNHEALTHY", got)
	}
}

func TestTracker_TransitionReportedOnce(t *testing.T) {
	tr := health.NewTracker(3, time.Hour)
	tr.Register("FIT100")

	if tr.RecordFailure("FIT100") {
		t.Error("Failure 1 should not report a transition")
	}
	if tr.RecordFailure("FIT100") {
		t.Error("Failure 2 should not report a transition")
	}
	if !tr.RecordFailure("FIT100") {
		t.Error("Failure 3 should report the unhealthy transition")
	}
	if tr.RecordFailure("FIT100") {
		t.Error("Failure 4 should not report the transition again")
	}
}

func TestTracker_SuccessResetsFailures(t *testing.T) {
	tr := health.NewTracker(3, time.Hour)
	tr.Register("FIT100")

	tr.RecordFailure("FIT100")
	tr.RecordFailure("FIT100")
	tr.RecordFailure("FIT100")
	tr.RecordSuccess("FIT100", false)

	s := tr.Status("FIT100")
	if s.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", s.ConsecutiveFailures)
	}
	if s.State != health.StateHealthy {
		t.Errorf("State after recovery = %s, want HEALTHY", s.State)
	}
}

func TestTracker_Staleness(t *testing.T) {
	tr := health.NewTracker(3, 15*time.Minute)
	tr.Register("FIT100")

	if !tr.Status("FIT100").DataStale {
		t.Error("Expected stale data before anything was stored")
	}

	tr.RecordSuccess("FIT100", true)
	if tr.Status("FIT100").DataStale {
		t.Error("Expected fresh data right after a stored measurement")
	}

	tr.SeedStored("FIT100", time.Now().Add(-16*time.Minute))
	if !tr.Status("FIT100").DataStale {
		t.Error("Expected stale data when the last stored measurement is too old")
	}
}

func TestTracker_SuccessWithoutStoreKeepsStoredMarker(t *testing.T) {
	tr := health.NewTracker(3, 15*time.Minute)
	tr.Register("FIT100")

	seeded := time.Now().Add(-5 * time.Minute)
	tr.SeedStored("FIT100", seeded)
	tr.RecordSuccess("FIT100", false)

	s := tr.Status("FIT100")
	if !s.LastStoredAt.Equal(seeded) {
		t.Errorf("LastStoredAt = %v, want seeded %v", s.LastStoredAt, seeded)
	}
}

func TestTracker_HealthyConsidersAllDevices(t *testing.T) {
	tr := health.NewTracker(2, time.Hour)
	tr.Register("FIT100")
	tr.Register("FIT200")

	tr.RecordSuccess("FIT100", true)
	tr.RecordSuccess("FIT200", true)
	if !tr.Healthy() {
		t.Fatal("Expected healthy tracker with two fresh devices")
	}

	tr.RecordFailure("FIT200")
	tr.RecordFailure("FIT200")
	if tr.Healthy() {
		t.Error("Expected unhealthy tracker once one device crosses the threshold")
	}
}

func TestTracker_Snapshot(t *testing.T) {
	tr := health.NewTracker(3, time.Hour)
	tr.Register("FIT100")
	tr.Register("FIT200")
	tr.RecordSuccess("FIT100", true)

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot size = %d, want 2", len(snap))
	}
	if snap["FIT100"].CyclesRun != 1 {
		t.Errorf("FIT100 cycles = %d, want 1", snap["FIT100"].CyclesRun)
	}
	if snap["FIT200"].CyclesRun != 0 {
		t.Errorf("FIT200 cycles = %d, want 0", snap["FIT200"].CyclesRun)
	}
}
