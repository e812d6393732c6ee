package tracing

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/smmu/datarecording"
)

type traceTableEntry struct {
	ID       string
	StreamID uint32
	PASID    uint32
	IOVA     uint64
	PAddr    uint64
	Access   string
	Outcome  string
	Time     uint64
}

// DBTracer stores translation traces through a DataRecorder backend, so the
// traces can be queried after a run.
type DBTracer struct {
	backend   datarecording.DataRecorder
	tableName string
}

// NewDBTracer creates a DBTracer writing into the given backend.
func NewDBTracer(backend datarecording.DataRecorder) *DBTracer {
	t := &DBTracer{
		backend:   backend,
		tableName: "translation_traces",
	}

	t.backend.CreateTable(t.tableName, traceTableEntry{})

	atexit.Register(func() { t.backend.Flush() })

	return t
}

// Trace stores one translation trace.
func (t *DBTracer) Trace(trace Trace) {
	t.backend.InsertData(t.tableName, traceTableEntry{
		ID:       trace.ID,
		StreamID: uint32(trace.StreamID),
		PASID:    uint32(trace.PASID),
		IOVA:     trace.IOVA,
		PAddr:    trace.PAddr,
		Access:   trace.Access.String(),
		Outcome:  trace.Outcome,
		Time:     trace.Time,
	})
}
