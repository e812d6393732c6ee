package smmu

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/smmu/fault"
	"github.com/sarchlab/smmu/tracing"
	"github.com/sarchlab/smmu/vm"
)

var _ = ginkgo.Describe("Translator", func() {
	var (
		mockCtrl   *gomock.Controller
		translator *Translator
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		translator = MakeBuilder().
			WithTLBCapacity(4).
			WithMaxFaults(16).
			Build("SMMU")
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.Context("translation flow", func() {
		ginkgo.It("should walk the page table on a cold miss and cache the result",
			func() {
				space := translator.CreateContext(1, 0)
				space.MapPage(0x10000000, 0x40000000, vm.ReadWrite())

				pa, err := translator.Translate(1, 0, 0x10000040, vm.AccessRead)
				Expect(err).ToNot(HaveOccurred())
				Expect(pa).To(Equal(uint64(0x40000040)))

				Expect(translator.TLBCache().MissCount()).
					To(Equal(uint64(1)))

				pa, err = translator.Translate(1, 0, 0x10000080, vm.AccessRead)
				Expect(err).ToNot(HaveOccurred())
				Expect(pa).To(Equal(uint64(0x40000080)))

				Expect(translator.TLBCache().HitCount()).To(Equal(uint64(1)))
			})

		ginkgo.It("should serve a hit without touching the page table", func() {
			table := NewMockPageTable(mockCtrl)
			translator.RegisterPageTable(1, 0, table)

			table.EXPECT().
				TranslatePage(uint64(0x10000000), vm.AccessRead).
				Return(uint64(0x40000000), nil)
			table.EXPECT().
				Permissions(uint64(0x10000000)).
				Return(vm.ReadWrite(), nil)

			_, err := translator.Translate(1, 0, 0x10000000, vm.AccessRead)
			Expect(err).ToNot(HaveOccurred())

			// The second lookup is served from the TLB. No further page
			// table expectations are set.
			pa, err := translator.Translate(1, 0, 0x10000010, vm.AccessWrite)
			Expect(err).ToNot(HaveOccurred())
			Expect(pa).To(Equal(uint64(0x40000010)))
		})

		ginkgo.It("should record a translation fault for an unmapped page", func() {
			translator.CreateContext(1, 0)

			_, err := translator.Translate(1, 0, 0x10000000, vm.AccessRead)

			Expect(err).To(MatchError(vm.ErrPageNotMapped))

			faults := translator.FaultHandler().Faults()
			Expect(faults).To(HaveLen(1))
			Expect(faults[0].Type).To(Equal(fault.TranslationFault))
			Expect(faults[0].Access).To(Equal(vm.AccessRead))
			Expect(faults[0].Addr).To(Equal(uint64(0x10000000)))
		})

		ginkgo.It("should record a permission fault", func() {
			space := translator.CreateContext(1, 0)
			space.MapPage(0x10000000, 0x40000000, vm.ReadOnly())

			_, err := translator.Translate(1, 0, 0x10000000, vm.AccessWrite)

			Expect(err).To(MatchError(vm.ErrPagePermissionViolation))
			Expect(translator.FaultHandler().
				FaultCountByType(fault.PermissionFault)).To(Equal(1))
		})

		ginkgo.It("should record a translation fault for an unknown context", func() {
			_, err := translator.Translate(7, 7, 0x10000000, vm.AccessRead)

			Expect(err).To(MatchError(vm.ErrPageNotMapped))
			Expect(translator.FaultHandler().FaultCount()).To(Equal(1))
		})

		ginkgo.It("should raise an address size fault beyond the input range",
			func() {
				translator.CreateContext(1, 0)

				_, err := translator.Translate(1, 0, uint64(1)<<IOVAAddressBits,
					vm.AccessRead)

				Expect(err).To(MatchError(ErrAddressSize))
				Expect(translator.FaultHandler().
					FaultCountByType(fault.AddressSizeFault)).To(Equal(1))
			})

		ginkgo.It("should re-check permissions on a TLB hit", func() {
			space := translator.CreateContext(1, 0)
			space.MapPage(0x10000000, 0x40000000, vm.ReadOnly())

			_, err := translator.Translate(1, 0, 0x10000000, vm.AccessRead)
			Expect(err).ToNot(HaveOccurred())

			// Cached with read-only permissions; a write must fault against
			// the page table, not succeed from the cache.
			_, err = translator.Translate(1, 0, 0x10000000, vm.AccessWrite)
			Expect(err).To(MatchError(vm.ErrPagePermissionViolation))
		})

		ginkgo.It("should stamp faults with increasing timestamps", func() {
			translator.CreateContext(1, 0)

			for i := 0; i < 3; i++ {
				_, _ = translator.Translate(1, 0, 0x10000000, vm.AccessRead)
			}

			faults := translator.FaultHandler().Faults()
			Expect(faults).To(HaveLen(3))
			Expect(faults[0].Time).To(BeNumerically("<", faults[1].Time))
			Expect(faults[1].Time).To(BeNumerically("<", faults[2].Time))
			Expect(translator.Now()).To(Equal(faults[2].Time))
		})
	})

	ginkgo.Context("invalidation commands", func() {
		var table *MockPageTable

		ginkgo.BeforeEach(func() {
			table = NewMockPageTable(mockCtrl)
			translator.RegisterPageTable(1, 0, table)

			table.EXPECT().
				TranslatePage(gomock.Any(), gomock.Any()).
				Return(uint64(0x40000000), nil).
				AnyTimes()
			table.EXPECT().
				Permissions(gomock.Any()).
				Return(vm.ReadWrite(), nil).
				AnyTimes()

			_, err := translator.Translate(1, 0, 0x10000000, vm.AccessRead)
			Expect(err).ToNot(HaveOccurred())
		})

		ginkgo.It("should scrub the TLB and notify tables on InvalidateAll", func() {
			table.EXPECT().InvalidateAll()

			translator.InvalidateAll()

			Expect(translator.TLBCache().Size()).To(Equal(0))
		})

		ginkgo.It("should scrub one stream on InvalidateStream", func() {
			table.EXPECT().InvalidateCache()

			translator.InvalidateStream(1)

			Expect(translator.TLBCache().Size()).To(Equal(0))
		})

		ginkgo.It("should scrub one context on InvalidateContext", func() {
			table.EXPECT().InvalidateCache()

			translator.InvalidateContext(1, 0)

			Expect(translator.TLBCache().Size()).To(Equal(0))
		})

		ginkgo.It("should scrub one page on InvalidatePage", func() {
			table.EXPECT().InvalidatePage(uint64(0x10000000))

			translator.InvalidatePage(1, 0, 0x10000000)

			Expect(translator.TLBCache().Size()).To(Equal(0))
		})

		ginkgo.It("should leave other streams alone on InvalidateStream", func() {
			other := translator.CreateContext(2, 0)
			other.MapPage(0x20000000, 0x50000000, vm.ReadOnly())
			_, err := translator.Translate(2, 0, 0x20000000, vm.AccessRead)
			Expect(err).ToNot(HaveOccurred())

			table.EXPECT().InvalidateCache()

			translator.InvalidateStream(1)

			Expect(translator.TLBCache().Size()).To(Equal(1))
		})
	})

	ginkgo.Context("context management", func() {
		ginkgo.It("should return the same address space for the same context",
			func() {
				first := translator.CreateContext(1, 0)
				second := translator.CreateContext(1, 0)

				Expect(first).To(BeIdenticalTo(second))
				Expect(translator.Contexts()).To(Equal(1))
			})

		ginkgo.It("should scrub the context's TLB entries on destroy", func() {
			space := translator.CreateContext(1, 0)
			space.MapPage(0x10000000, 0x40000000, vm.ReadWrite())
			_, err := translator.Translate(1, 0, 0x10000000, vm.AccessRead)
			Expect(err).ToNot(HaveOccurred())

			translator.DestroyContext(1, 0)

			Expect(translator.Contexts()).To(Equal(0))
			Expect(translator.TLBCache().Size()).To(Equal(0))
		})
	})

	ginkgo.Context("tracing", func() {
		var tracer *MockTracer

		ginkgo.BeforeEach(func() {
			tracer = NewMockTracer(mockCtrl)
			translator = MakeBuilder().
				WithTracer(tracer).
				Build("SMMU")
		})

		ginkgo.It("should trace the outcome of every translation", func() {
			space := translator.CreateContext(1, 0)
			space.MapPage(0x10000000, 0x40000000, vm.ReadOnly())

			gomock.InOrder(
				tracer.EXPECT().Trace(gomock.Cond(func(x any) bool {
					t, ok := x.(tracing.Trace)
					return ok && t.Outcome == tracing.OutcomeMiss &&
						t.PAddr == 0x40000000
				})),
				tracer.EXPECT().Trace(gomock.Cond(func(x any) bool {
					t, ok := x.(tracing.Trace)
					return ok && t.Outcome == tracing.OutcomeHit
				})),
				tracer.EXPECT().Trace(gomock.Cond(func(x any) bool {
					t, ok := x.(tracing.Trace)
					return ok && t.Outcome == tracing.OutcomeFault
				})),
			)

			_, _ = translator.Translate(1, 0, 0x10000000, vm.AccessRead)
			_, _ = translator.Translate(1, 0, 0x10000000, vm.AccessRead)
			_, _ = translator.Translate(1, 0, 0x10000000, vm.AccessWrite)
		})
	})
})
