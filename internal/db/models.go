package db

import (
	"time"

	"github.com/lismorewater/flowmon/internal/reading"
)

// Device represents a monitored device in the database.
type Device struct {
	ID        string
	Name      string
	Location  *string
	Endpoint  string
	CreatedAt time.Time
}

// Measurement represents a stored measurement in the database. Field columns
// are nullable; a nil pointer means the field was not extractable when the
// reading was taken, which is distinct from a stored zero.
type Measurement struct {
	ID          int64
	DeviceID    string
	ObservedAt  time.Time
	DepthMM     *float64
	VelocityMPS *float64
	FlowLPS     *float64
	CreatedAt   time.Time
}

// FromReading converts an in-memory reading to its persisted form.
func FromReading(r reading.Reading) *Measurement {
	m := &Measurement{
		DeviceID:   r.DeviceID,
		ObservedAt: r.ObservedAt,
	}
	if v, ok := r.Value(reading.FieldDepth); ok {
		m.DepthMM = &v
	}
	if v, ok := r.Value(reading.FieldVelocity); ok {
		m.VelocityMPS = &v
	}
	if v, ok := r.Value(reading.FieldFlow); ok {
		m.FlowLPS = &v
	}
	return m
}

// Reading converts the measurement back to its in-memory form, preserving
// absent fields, so it can be fingerprinted against fresh readings.
func (m *Measurement) Reading() reading.Reading {
	r := reading.New(m.DeviceID, m.ObservedAt)
	r.FetchOK = true
	if m.DepthMM != nil {
		r.Set(reading.FieldDepth, *m.DepthMM)
	}
	if m.VelocityMPS != nil {
		r.Set(reading.FieldVelocity, *m.VelocityMPS)
	}
	if m.FlowLPS != nil {
		r.Set(reading.FieldFlow, *m.FlowLPS)
	}
	return r
}
