// Package tracing observes individual translations as they flow through a
// translator, and stores them in CSV files or databases.
package tracing

import (
	"github.com/rs/xid"

	"github.com/sarchlab/smmu/vm"
)

// The possible outcomes of a traced translation.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeFault = "fault"
)

// A Trace describes one translation attempt.
type Trace struct {
	ID       string
	StreamID vm.StreamID
	PASID    vm.PASID
	IOVA     uint64

	// PAddr is the translated address. It is 0 when the outcome is a fault.
	PAddr uint64

	Access  vm.AccessType
	Outcome string
	Time    uint64
}

// A Tracer can collect translation traces.
type Tracer interface {
	Trace(t Trace)
}

// NewTrace creates a Trace with a unique ID.
func NewTrace(
	streamID vm.StreamID,
	pasid vm.PASID,
	iova uint64,
	access vm.AccessType,
) Trace {
	return Trace{
		ID:       xid.New().String(),
		StreamID: streamID,
		PASID:    pasid,
		IOVA:     iova,
		Access:   access,
	}
}
