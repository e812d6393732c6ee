package smmu

import (
	"github.com/sarchlab/smmu/fault"
	"github.com/sarchlab/smmu/tracing"
	"github.com/sarchlab/smmu/vm/tlb"
)

// A Builder can build Translators.
type Builder struct {
	tlbCapacity int
	maxFaults   int
	tracers     []tracing.Tracer
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		tlbCapacity: 64,
		maxFaults:   fault.DefaultMaxFaults,
	}
}

// WithTLBCapacity sets the entry capacity of the shared TLB.
func (b Builder) WithTLBCapacity(capacity int) Builder {
	b.tlbCapacity = capacity
	return b
}

// WithMaxFaults sets the capacity of the fault log. 0 means unbounded.
func (b Builder) WithMaxFaults(n int) Builder {
	b.maxFaults = n
	return b
}

// WithTracer adds a tracer that observes every translation attempt.
func (b Builder) WithTracer(tracer tracing.Tracer) Builder {
	b.tracers = append(b.tracers, tracer)
	return b
}

// Build creates a Translator with the given name.
func (b Builder) Build(name string) *Translator {
	faults := fault.NewHandler()
	faults.SetMaxFaults(b.maxFaults)

	return &Translator{
		name:    name,
		tables:  make(map[Context]PageTable),
		tlb:     tlb.MakeBuilder().WithCapacity(b.tlbCapacity).Build(name + ".TLB"),
		faults:  faults,
		tracers: b.tracers,
	}
}
