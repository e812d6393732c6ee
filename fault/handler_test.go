package fault

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/smmu/vm"
)

func record(streamID vm.StreamID, t Type, time uint64) Record {
	return Record{
		StreamID: streamID,
		PASID:    0,
		Addr:     0x1000,
		Type:     t,
		Access:   vm.AccessRead,
		Time:     time,
	}
}

var _ = Describe("Handler", func() {
	var h *Handler

	BeforeEach(func() {
		h = NewHandler()
	})

	Context("recording", func() {
		It("should keep records in insertion order", func() {
			h.RecordFault(record(1, TranslationFault, 10))
			h.RecordFault(record(2, PermissionFault, 20))
			h.RecordFault(record(3, AccessFault, 30))

			faults := h.Faults()

			Expect(faults).To(HaveLen(3))
			Expect(faults[0].StreamID).To(Equal(vm.StreamID(1)))
			Expect(faults[1].StreamID).To(Equal(vm.StreamID(2)))
			Expect(faults[2].StreamID).To(Equal(vm.StreamID(3)))
		})

		It("should maintain per-type and per-access counters", func() {
			h.RecordFault(record(1, TranslationFault, 10))
			h.RecordFault(record(1, TranslationFault, 20))
			h.RecordFault(Record{
				Type:   PermissionFault,
				Access: vm.AccessWrite,
				Time:   30,
			})

			Expect(h.FaultCount()).To(Equal(3))
			Expect(h.FaultCountByType(TranslationFault)).To(Equal(2))
			Expect(h.FaultCountByType(PermissionFault)).To(Equal(1))
			Expect(h.FaultCountByType(AddressSizeFault)).To(Equal(0))
			Expect(h.FaultCountByAccessType(vm.AccessRead)).To(Equal(2))
			Expect(h.FaultCountByAccessType(vm.AccessWrite)).To(Equal(1))
		})
	})

	Context("capacity bound", func() {
		It("should evict the oldest records beyond the bound", func() {
			h.SetMaxFaults(10)

			for i := uint64(0); i < 15; i++ {
				h.RecordFault(record(vm.StreamID(i), TranslationFault, i))
			}

			faults := h.Faults()

			Expect(faults).To(HaveLen(10))
			Expect(faults[0].Time).To(Equal(uint64(5)))
			Expect(faults[9].Time).To(Equal(uint64(14)))
			Expect(h.FaultCountByType(TranslationFault)).To(Equal(10))
			Expect(h.FaultCountByAccessType(vm.AccessRead)).To(Equal(10))
		})

		It("should trim immediately when the bound shrinks", func() {
			for i := uint64(0); i < 8; i++ {
				h.RecordFault(record(vm.StreamID(i), PermissionFault, i))
			}

			h.SetMaxFaults(3)

			faults := h.Faults()

			Expect(faults).To(HaveLen(3))
			Expect(faults[0].Time).To(Equal(uint64(5)))
			Expect(h.FaultCountByType(PermissionFault)).To(Equal(3))
		})

		It("should be unbounded with a capacity of 0", func() {
			h.SetMaxFaults(0)

			for i := uint64(0); i < DefaultMaxFaults+100; i++ {
				h.RecordFault(record(1, TranslationFault, i))
			}

			Expect(h.FaultCount()).To(Equal(DefaultMaxFaults + 100))
		})
	})

	Context("filtered views", func() {
		BeforeEach(func() {
			h.RecordFault(Record{StreamID: 1, PASID: 7, Time: 1})
			h.RecordFault(Record{StreamID: 2, PASID: 7, Time: 2})
			h.RecordFault(Record{StreamID: 1, PASID: 8, Time: 3})
		})

		It("should filter by stream preserving order", func() {
			faults := h.FaultsByStream(1)

			Expect(faults).To(HaveLen(2))
			Expect(faults[0].Time).To(Equal(uint64(1)))
			Expect(faults[1].Time).To(Equal(uint64(3)))
		})

		It("should filter by PASID preserving order", func() {
			faults := h.FaultsByPASID(7)

			Expect(faults).To(HaveLen(2))
			Expect(faults[0].StreamID).To(Equal(vm.StreamID(1)))
			Expect(faults[1].StreamID).To(Equal(vm.StreamID(2)))
		})
	})

	Context("windowed queries", func() {
		BeforeEach(func() {
			for _, ts := range []uint64{10, 20, 30, 40, 50} {
				h.RecordFault(record(1, TranslationFault, ts))
			}
		})

		It("should exclude the lower bound and include the upper", func() {
			// Window (20, 40]: timestamps 30 and 40.
			Expect(h.FaultRate(40, 20)).To(Equal(2))
		})

		It("should count everything when the window covers all time", func() {
			Expect(h.FaultRate(50, 100)).To(Equal(5))
		})

		It("should ignore records after the current time", func() {
			// Window (5, 25]: timestamps 10 and 20; 30, 40, 50 are beyond
			// the current time.
			Expect(h.FaultRate(25, 20)).To(Equal(2))
		})

		It("should return recent faults without an upper bound", func() {
			faults := h.RecentFaults(25, 20)

			Expect(faults).To(HaveLen(5))
			Expect(faults[0].Time).To(Equal(uint64(10)))
			Expect(faults[4].Time).To(Equal(uint64(50)))
		})

		It("should bound recent faults from below exclusively", func() {
			faults := h.RecentFaults(50, 20)

			Expect(faults).To(HaveLen(2))
			Expect(faults[0].Time).To(Equal(uint64(40)))
		})
	})

	Context("lifecycle", func() {
		It("should zero everything on clear", func() {
			h.RecordFault(record(1, TranslationFault, 10))
			h.RecordFault(record(1, PermissionFault, 20))

			h.ClearFaults()

			Expect(h.FaultCount()).To(Equal(0))
			Expect(h.Faults()).To(BeEmpty())
			Expect(h.FaultCountByType(TranslationFault)).To(Equal(0))
			Expect(h.FaultCountByAccessType(vm.AccessRead)).To(Equal(0))
		})

		It("should keep the configured capacity across reset", func() {
			h.SetMaxFaults(5)
			h.RecordFault(record(1, TranslationFault, 10))

			h.Reset()

			Expect(h.FaultCount()).To(Equal(0))
			Expect(h.MaxFaults()).To(Equal(5))
		})
	})
})
