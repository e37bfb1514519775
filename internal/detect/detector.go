package detect

import (
	"github.com/lismorewater/flowmon/internal/reading"
)

// Detector decides whether a reading represents new information worth
// persisting. Each device owns one detector; it is driven from a single
// scheduler goroutine and needs no locking.
type Detector struct {
	storeAll  bool
	skipEmpty bool

	last   reading.Fingerprint
	primed bool
}

// NewDetector creates a detector. With storeAll every successful reading is
// stored regardless of change. With skipEmpty an all-absent reading is never
// stored even when it differs from the last stored state.
func NewDetector(storeAll, skipEmpty bool) *Detector {
	return &Detector{storeAll: storeAll, skipEmpty: skipEmpty}
}

// Prime seeds the detector with the fingerprint of the most recent stored
// measurement, so a restart does not re-store an unchanged state.
func (d *Detector) Prime(fp reading.Fingerprint) {
	d.last = fp
	d.primed = true
}

// ShouldStore reports whether the reading should be persisted and returns
// its fingerprint. It does not touch the last-known state; the caller calls
// Commit once the measurement is durably stored, so a failed append leaves
// the state due for storage on the next cycle.
func (d *Detector) ShouldStore(r reading.Reading) (bool, reading.Fingerprint) {
	fp := reading.Hash(r)

	if !r.FetchOK {
		return false, fp
	}
	if d.skipEmpty && r.Empty() {
		return false, fp
	}
	if d.storeAll {
		return true, fp
	}
	if d.primed && fp == d.last {
		return false, fp
	}
	return true, fp
}

// Commit records the fingerprint as the last stored state. A duplicate
// append counts as stored: the state is already in the store.
func (d *Detector) Commit(fp reading.Fingerprint) {
	d.last = fp
	d.primed = true
}
