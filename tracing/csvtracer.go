package tracing

import (
	"fmt"
	"os"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// CSVTracer stores translation traces in a CSV file.
type CSVTracer struct {
	path string
	file *os.File

	traces     []Trace
	bufferSize int
}

// NewCSVTracer creates a CSVTracer. If path is empty, a unique file name is
// generated.
func NewCSVTracer(path string) *CSVTracer {
	return &CSVTracer{
		path:       path,
		bufferSize: 1000,
	}
}

// Init creates the trace file. It must be called before the first Trace.
func (t *CSVTracer) Init() {
	if t.path == "" {
		t.path = "smmu_trace_" + xid.New().String()
	}

	filename := t.path + ".csv"
	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	file, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	t.file = file

	fmt.Fprintf(file, "ID, StreamID, PASID, IOVA, PAddr, Access, Outcome, Time\n")

	atexit.Register(func() {
		t.Flush()
		if err := t.file.Close(); err != nil {
			panic(err)
		}
	})
}

// Trace buffers one translation trace.
func (t *CSVTracer) Trace(trace Trace) {
	t.traces = append(t.traces, trace)
	if len(t.traces) >= t.bufferSize {
		t.Flush()
	}
}

// Flush writes the buffered traces to the file.
func (t *CSVTracer) Flush() {
	for _, trace := range t.traces {
		fmt.Fprintf(t.file, "%s, %d, %d, 0x%x, 0x%x, %s, %s, %d\n",
			trace.ID,
			trace.StreamID,
			trace.PASID,
			trace.IOVA,
			trace.PAddr,
			trace.Access,
			trace.Outcome,
			trace.Time,
		)
	}

	t.traces = nil
}
