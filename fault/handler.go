package fault

import "github.com/sarchlab/smmu/vm"

// DefaultMaxFaults is the log capacity a Handler starts with.
const DefaultMaxFaults = 1024

// A Handler keeps a bounded, insertion-ordered log of faults. When the log is
// full, the oldest record is evicted first. The per-type and per-access
// counters always agree with the retained log.
//
// A Handler performs no internal locking.
type Handler struct {
	records   []Record
	maxFaults int

	countByType   map[Type]int
	countByAccess map[vm.AccessType]int
}

// NewHandler creates a Handler with the default capacity.
func NewHandler() *Handler {
	return &Handler{
		maxFaults:     DefaultMaxFaults,
		countByType:   make(map[Type]int),
		countByAccess: make(map[vm.AccessType]int),
	}
}

// RecordFault appends a record to the log, evicting the oldest record first
// if the log is at capacity. It never fails.
func (h *Handler) RecordFault(r Record) {
	if h.maxFaults > 0 && len(h.records) >= h.maxFaults {
		h.evictOldest(len(h.records) - h.maxFaults + 1)
	}

	h.records = append(h.records, r)
	h.countByType[r.Type]++
	h.countByAccess[r.Access]++
}

// Faults returns the retained log, oldest first.
func (h *Handler) Faults() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)

	return out
}

// FaultCount returns the number of retained records.
func (h *Handler) FaultCount() int {
	return len(h.records)
}

// FaultCountByType returns the number of retained records of the given type.
func (h *Handler) FaultCountByType(t Type) int {
	return h.countByType[t]
}

// FaultCountByAccessType returns the number of retained records with the
// given attempted access.
func (h *Handler) FaultCountByAccessType(a vm.AccessType) int {
	return h.countByAccess[a]
}

// FaultsByStream returns the retained records of the stream in log order.
func (h *Handler) FaultsByStream(streamID vm.StreamID) []Record {
	return h.filter(func(r Record) bool { return r.StreamID == streamID })
}

// FaultsByPASID returns the retained records of the PASID in log order.
func (h *Handler) FaultsByPASID(pasid vm.PASID) []Record {
	return h.filter(func(r Record) bool { return r.PASID == pasid })
}

// FaultRate counts the retained records with a timestamp in (now-window, now].
func (h *Handler) FaultRate(now, window uint64) int {
	count := 0
	for _, r := range h.records {
		if h.inWindow(r.Time, now, window) && r.Time <= now {
			count++
		}
	}

	return count
}

// RecentFaults returns, in log order, the retained records with a timestamp
// greater than now-window. There is no upper bound beyond what the log
// already contains.
func (h *Handler) RecentFaults(now, window uint64) []Record {
	return h.filter(func(r Record) bool {
		return h.inWindow(r.Time, now, window)
	})
}

// ClearFaults empties the log and zeroes all counters.
func (h *Handler) ClearFaults() {
	h.records = nil
	h.countByType = make(map[Type]int)
	h.countByAccess = make(map[vm.AccessType]int)
}

// Reset restores the Handler to its post-construction state, keeping the
// configured capacity.
func (h *Handler) Reset() {
	h.ClearFaults()
}

// SetMaxFaults sets the log capacity, trimming the oldest records immediately
// if the log already exceeds it. A capacity of 0 means unbounded.
func (h *Handler) SetMaxFaults(n int) {
	h.maxFaults = n

	if n > 0 && len(h.records) > n {
		h.evictOldest(len(h.records) - n)
	}
}

// MaxFaults returns the configured log capacity, 0 meaning unbounded.
func (h *Handler) MaxFaults() int {
	return h.maxFaults
}

func (h *Handler) evictOldest(n int) {
	for _, r := range h.records[:n] {
		h.countByType[r.Type]--
		h.countByAccess[r.Access]--
	}

	remaining := make([]Record, len(h.records)-n)
	copy(remaining, h.records[n:])
	h.records = remaining
}

// inWindow implements the exclusive lower bound ts > now-window, tolerating
// windows wider than the current time.
func (h *Handler) inWindow(ts, now, window uint64) bool {
	if window > now {
		return true
	}

	return ts > now-window
}

func (h *Handler) filter(keep func(Record) bool) []Record {
	var out []Record
	for _, r := range h.records {
		if keep(r) {
			out = append(out, r)
		}
	}

	return out
}
