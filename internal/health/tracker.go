package health

import (
	"sync"
	"time"
)

// State classifies a device's polling health.
type State string

const (
	StateHealthy   State = "HEALTHY"
	StateUnhealthy State = "UNHEALTHY"
)

// DeviceStatus is a point-in-time view of one device's polling health.
type DeviceStatus struct {
	DeviceID            string    `json:"device_id"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CyclesRun           int64     `json:"cycles_run"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastStoredAt        time.Time `json:"last_stored_at,omitempty"`
	DataStale           bool      `json:"data_stale"`
}

// Tracker maintains per-device failure counters and health state. It is
// written by the scheduler goroutines and read by the API, so all access is
// mutex-guarded.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	maxAge    time.Duration
	devices   map[string]*deviceState
}

type deviceState struct {
	failures      int
	cycles        int64
	lastSuccessAt time.Time
	lastStoredAt  time.Time
}

// NewTracker creates a tracker. threshold is the consecutive-failure count
// at which a device is marked unhealthy; maxAge is how old the last stored
// measurement may be before the device's data counts as stale.
func NewTracker(threshold int, maxAge time.Duration) *Tracker {
	return &Tracker{
		threshold: threshold,
		maxAge:    maxAge,
		devices:   make(map[string]*deviceState),
	}
}

// Register adds a device to the tracker. Registering an existing device is
// a no-op.
func (t *Tracker) Register(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.devices[deviceID]; !ok {
		t.devices[deviceID] = &deviceState{}
	}
}

// RecordFailure counts one failed cycle. It reports whether this failure
// pushed the device over the unhealthy threshold, so the caller can emit
// the transition exactly once.
func (t *Tracker) RecordFailure(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.device(deviceID)
	d.cycles++
	d.failures++
	return d.failures == t.threshold
}

// RecordSuccess counts one successful cycle and resets the failure counter.
// stored marks whether the cycle persisted a measurement.
func (t *Tracker) RecordSuccess(deviceID string, stored bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.device(deviceID)
	d.cycles++
	d.failures = 0
	d.lastSuccessAt = time.Now()
	if stored {
		d.lastStoredAt = d.lastSuccessAt
	}
}

// SeedStored backdates the device's last-stored marker, typically from the
// newest measurement already in the database at startup.
func (t *Tracker) SeedStored(deviceID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.device(deviceID).lastStoredAt = at
}

// Status returns the device's current status.
func (t *Tracker) Status(deviceID string) DeviceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status(deviceID, t.device(deviceID))
}

// Snapshot returns the status of every registered device, keyed by device
// identifier.
func (t *Tracker) Snapshot() map[string]DeviceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]DeviceStatus, len(t.devices))
	for id, d := range t.devices {
		out[id] = t.status(id, d)
	}
	return out
}

// Healthy reports whether every registered device is below the failure
// threshold and has fresh data.
func (t *Tracker) Healthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, d := range t.devices {
		s := t.status(id, d)
		if s.State != StateHealthy || s.DataStale {
			return false
		}
	}
	return true
}

func (t *Tracker) device(deviceID string) *deviceState {
	d, ok := t.devices[deviceID]
	if !ok {
		d = &deviceState{}
		t.devices[deviceID] = d
	}
	return d
}

func (t *Tracker) status(deviceID string, d *deviceState) DeviceStatus {
	state := StateHealthy
	if d.failures >= t.threshold {
		state = StateUnhealthy
	}

	stale := d.lastStoredAt.IsZero() || time.Since(d.lastStoredAt) > t.maxAge

	return DeviceStatus{
		DeviceID:            deviceID,
		State:               state,
		ConsecutiveFailures: d.failures,
		CyclesRun:           d.cycles,
		LastSuccessAt:       d.lastSuccessAt,
		LastStoredAt:        d.lastStoredAt,
		DataStale:           stale,
	}
}
