// Package smmu ties the translation engines of an SMMUv3 model together: the
// per-context address spaces, the shared TLB, and the fault log. It drives
// the lookup-then-walk control flow a device model issues translations
// through, and the TLBI-style invalidation commands.
package smmu

import (
	"errors"

	"github.com/sarchlab/smmu/fault"
	"github.com/sarchlab/smmu/tracing"
	"github.com/sarchlab/smmu/vm"
	"github.com/sarchlab/smmu/vm/tlb"
)

// IOVAAddressBits is the supported input address width. Translating an
// address at or beyond this width raises an address size fault.
const IOVAAddressBits = 52

// ErrAddressSize is returned when an I/O virtual address exceeds the input
// address range.
var ErrAddressSize = errors.New("address exceeds input address range")

// A Context identifies one translation context, the pair of the requesting
// stream and the process address space within it.
type Context struct {
	StreamID vm.StreamID
	PASID    vm.PASID
}

// A PageTable is the authoritative translation store of one context.
// *vm.AddressSpace satisfies it.
type PageTable interface {
	TranslatePage(iova uint64, access vm.AccessType) (uint64, error)
	Permissions(iova uint64) (vm.PagePermissions, error)
	InvalidateCache()
	InvalidatePage(iova uint64)
	InvalidateRange(start, end uint64)
	InvalidateAll()
}

// TLB is the associative translation cache the Translator consults before
// walking a page table. *tlb.Cache satisfies it.
type TLB interface {
	Insert(entry tlb.Entry)
	Lookup(streamID vm.StreamID, pasid vm.PASID, iova uint64) (tlb.Entry, bool)
	Invalidate(streamID vm.StreamID, pasid vm.PASID, iova uint64)
	InvalidateByStream(streamID vm.StreamID)
	InvalidateByPASID(streamID vm.StreamID, pasid vm.PASID)
	Clear()
	Size() int
	Capacity() int
	HitCount() uint64
	MissCount() uint64
	TotalLookups() uint64
	HitRate() float64
}

// A Translator owns one page table per context, a shared TLB, and a fault
// log. Translations consult the TLB first and fall back to the page table,
// populating the TLB on success and recording a fault on failure.
//
// A Translator performs no internal locking; embedders that share one across
// goroutines must serialize access.
type Translator struct {
	name string

	tables  map[Context]PageTable
	tlb     TLB
	faults  *fault.Handler
	tracers []tracing.Tracer

	// clock provides the monotonically increasing timestamps the fault log's
	// windowed queries rely on. One tick per translation attempt.
	clock uint64
}

// Name returns the name of the translator.
func (t *Translator) Name() string {
	return t.name
}

// TLBCache returns the shared TLB.
func (t *Translator) TLBCache() TLB {
	return t.tlb
}

// FaultHandler returns the fault log.
func (t *Translator) FaultHandler() *fault.Handler {
	return t.faults
}

// Now returns the timestamp of the most recent translation attempt.
func (t *Translator) Now() uint64 {
	return t.clock
}

// CreateContext returns the address space of the context, creating an empty
// one if the context is new. It panics if the context was registered with a
// custom page table.
func (t *Translator) CreateContext(
	streamID vm.StreamID,
	pasid vm.PASID,
) *vm.AddressSpace {
	ctx := Context{StreamID: streamID, PASID: pasid}

	if existing, found := t.tables[ctx]; found {
		space, ok := existing.(*vm.AddressSpace)
		if !ok {
			panic("context is backed by a custom page table")
		}

		return space
	}

	space := vm.NewAddressSpace()
	t.tables[ctx] = space

	return space
}

// RegisterPageTable backs a context with the given page table, replacing any
// existing one. The stale TLB entries of the context are scrubbed.
func (t *Translator) RegisterPageTable(
	streamID vm.StreamID,
	pasid vm.PASID,
	table PageTable,
) {
	t.tables[Context{StreamID: streamID, PASID: pasid}] = table
	t.tlb.InvalidateByPASID(streamID, pasid)
}

// DestroyContext removes a context and scrubs its TLB entries. Destroying an
// unknown context is a no-op.
func (t *Translator) DestroyContext(streamID vm.StreamID, pasid vm.PASID) {
	delete(t.tables, Context{StreamID: streamID, PASID: pasid})
	t.tlb.InvalidateByPASID(streamID, pasid)
}

// Contexts returns the number of registered contexts.
func (t *Translator) Contexts() int {
	return len(t.tables)
}

// Translate resolves iova for the given context and access type. The TLB is
// consulted first; on a miss the context's page table is walked and the TLB
// is populated with the result. Failures are recorded in the fault log and
// returned to the caller; they are never retried internally.
func (t *Translator) Translate(
	streamID vm.StreamID,
	pasid vm.PASID,
	iova uint64,
	access vm.AccessType,
) (uint64, error) {
	t.clock++

	if iova>>IOVAAddressBits != 0 {
		t.recordFault(streamID, pasid, iova, fault.AddressSizeFault, access)
		t.trace(streamID, pasid, iova, access, 0, tracing.OutcomeFault)

		return 0, &vm.PageError{Addr: iova, Access: access, Err: ErrAddressSize}
	}

	entry, found := t.tlb.Lookup(streamID, pasid, iova)
	if found && entry.Valid && entry.Perms.Allows(access) {
		pa := entry.PAddr + (iova & vm.PageMask)
		t.trace(streamID, pasid, iova, access, pa, tracing.OutcomeHit)

		return pa, nil
	}

	if found {
		// The cached entry cannot serve this access. Drop it and let the
		// page table decide, so the fault is raised against ground truth.
		t.tlb.Invalidate(streamID, pasid, iova)
	}

	return t.walk(streamID, pasid, iova, access)
}

// InvalidateAll drops every TLB entry and notifies every page table.
func (t *Translator) InvalidateAll() {
	t.tlb.Clear()
	for _, table := range t.tables {
		table.InvalidateAll()
	}
}

// InvalidateStream drops the TLB entries of a stream and notifies the page
// tables of its contexts.
func (t *Translator) InvalidateStream(streamID vm.StreamID) {
	t.tlb.InvalidateByStream(streamID)
	for ctx, table := range t.tables {
		if ctx.StreamID == streamID {
			table.InvalidateCache()
		}
	}
}

// InvalidateContext drops the TLB entries of one context and notifies its
// page table.
func (t *Translator) InvalidateContext(streamID vm.StreamID, pasid vm.PASID) {
	t.tlb.InvalidateByPASID(streamID, pasid)

	if table, found := t.tables[Context{streamID, pasid}]; found {
		table.InvalidateCache()
	}
}

// InvalidatePage drops the TLB entry of one page and notifies the context's
// page table.
func (t *Translator) InvalidatePage(
	streamID vm.StreamID,
	pasid vm.PASID,
	iova uint64,
) {
	t.tlb.Invalidate(streamID, pasid, iova)

	if table, found := t.tables[Context{streamID, pasid}]; found {
		table.InvalidatePage(iova)
	}
}

// ReportFault records a fault raised outside the translation path, such as an
// external abort on a descriptor fetch, stamping it with the current clock.
func (t *Translator) ReportFault(
	streamID vm.StreamID,
	pasid vm.PASID,
	addr uint64,
	faultType fault.Type,
	access vm.AccessType,
) {
	t.recordFault(streamID, pasid, addr, faultType, access)
}

func (t *Translator) walk(
	streamID vm.StreamID,
	pasid vm.PASID,
	iova uint64,
	access vm.AccessType,
) (uint64, error) {
	table, found := t.tables[Context{streamID, pasid}]
	if !found {
		t.recordFault(streamID, pasid, iova, fault.TranslationFault, access)
		t.trace(streamID, pasid, iova, access, 0, tracing.OutcomeFault)

		return 0, &vm.PageError{
			Addr:   iova,
			Access: access,
			Err:    vm.ErrPageNotMapped,
		}
	}

	pa, err := table.TranslatePage(iova, access)
	if err != nil {
		t.recordFault(streamID, pasid, iova, classifyFault(err), access)
		t.trace(streamID, pasid, iova, access, 0, tracing.OutcomeFault)

		return 0, err
	}

	perms, permErr := table.Permissions(iova)
	if permErr == nil {
		t.tlb.Insert(tlb.Entry{
			StreamID: streamID,
			PASID:    pasid,
			IOVA:     vm.AlignToPage(iova),
			PAddr:    vm.AlignToPage(pa),
			Perms:    perms,
			Valid:    true,
		})
	}

	t.trace(streamID, pasid, iova, access, pa, tracing.OutcomeMiss)

	return pa, nil
}

func (t *Translator) recordFault(
	streamID vm.StreamID,
	pasid vm.PASID,
	addr uint64,
	faultType fault.Type,
	access vm.AccessType,
) {
	t.faults.RecordFault(fault.Record{
		StreamID: streamID,
		PASID:    pasid,
		Addr:     addr,
		Type:     faultType,
		Access:   access,
		Time:     t.clock,
	})
}

func (t *Translator) trace(
	streamID vm.StreamID,
	pasid vm.PASID,
	iova uint64,
	access vm.AccessType,
	pa uint64,
	outcome string,
) {
	if len(t.tracers) == 0 {
		return
	}

	trace := tracing.NewTrace(streamID, pasid, iova, access)
	trace.PAddr = pa
	trace.Outcome = outcome
	trace.Time = t.clock

	for _, tracer := range t.tracers {
		tracer.Trace(trace)
	}
}

func classifyFault(err error) fault.Type {
	switch {
	case errors.Is(err, vm.ErrPagePermissionViolation):
		return fault.PermissionFault
	case errors.Is(err, vm.ErrPageNotMapped):
		return fault.TranslationFault
	default:
		return fault.AccessFault
	}
}
