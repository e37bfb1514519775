package reading

import (
	"time"
)

// Field identifies one measured quantity on a monitored device.
type Field string

const (
	FieldDepth    Field = "depth_mm"
	FieldFlow     Field = "flow_lps"
	FieldVelocity Field = "velocity_mps"
)

// Fields returns every known field in canonical (lexical) order. The
// fingerprint serialization depends on this order being stable.
func Fields() []Field {
	return []Field{FieldDepth, FieldFlow, FieldVelocity}
}

// Known reports whether name is a recognized field identifier.
func Known(name string) bool {
	for _, f := range Fields() {
		if string(f) == name {
			return true
		}
	}
	return false
}

// Aliases returns the case-insensitive labels under which the field may
// appear in page text.
func (f Field) Aliases() []string {
	switch f {
	case FieldDepth:
		return []string{"depth"}
	case FieldVelocity:
		return []string{"velocity"}
	case FieldFlow:
		return []string{"flow", "flow rate"}
	}
	return nil
}

// Units returns the unit suffixes that may trail the field's value in
// page text.
func (f Field) Units() []string {
	switch f {
	case FieldDepth:
		return []string{"mm", "m"}
	case FieldVelocity:
		return []string{"m/s", "mps"}
	case FieldFlow:
		return []string{"l/s", "lps"}
	}
	return nil
}

// Reading is one in-memory snapshot of a device's field values. A field
// missing from Values was not extractable; absence is distinct from a
// stored zero and stays distinct through hashing and persistence.
type Reading struct {
	DeviceID   string
	ObservedAt time.Time
	Values     map[Field]float64
	FetchOK    bool
}

// New returns an empty reading for the device.
func New(deviceID string, observedAt time.Time) Reading {
	return Reading{
		DeviceID:   deviceID,
		ObservedAt: observedAt,
		Values:     make(map[Field]float64),
	}
}

// Set records an extracted value for the field.
func (r Reading) Set(f Field, v float64) {
	r.Values[f] = v
}

// Value returns the field's value and whether it was extracted.
func (r Reading) Value(f Field) (float64, bool) {
	v, ok := r.Values[f]
	return v, ok
}

// Empty reports whether no field was extracted at all.
func (r Reading) Empty() bool {
	return len(r.Values) == 0
}
