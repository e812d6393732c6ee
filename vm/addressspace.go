package vm

type pageEntry struct {
	paddr uint64
	perms PagePermissions
}

// An AddressSpace is the authoritative sparse page map of one translation
// context. It is the ground truth a TLB is populated from.
//
// An AddressSpace performs no internal locking. Callers that share one
// instance across goroutines must serialize access themselves.
type AddressSpace struct {
	pages map[uint64]pageEntry
}

// NewAddressSpace creates an empty AddressSpace.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		pages: make(map[uint64]pageEntry),
	}
}

// MapPage inserts or replaces the mapping for the page containing iova. Both
// addresses are aligned down to their page boundary before storage.
func (s *AddressSpace) MapPage(iova, pa uint64, perms PagePermissions) {
	s.pages[AlignToPage(iova)] = pageEntry{
		paddr: AlignToPage(pa),
		perms: perms,
	}
}

// UnmapPage removes the mapping for the page containing iova. Unmapping an
// unmapped page is a no-op.
func (s *AddressSpace) UnmapPage(iova uint64) {
	delete(s.pages, AlignToPage(iova))
}

// TranslatePage translates iova for the given access type. The in-page offset
// of iova is preserved in the returned physical address. Translation fails
// with ErrPageNotMapped if the page has no mapping, and with
// ErrPagePermissionViolation if the mapping does not grant the access.
func (s *AddressSpace) TranslatePage(
	iova uint64,
	access AccessType,
) (uint64, error) {
	entry, found := s.pages[AlignToPage(iova)]
	if !found {
		return 0, &PageError{Addr: iova, Access: access, Err: ErrPageNotMapped}
	}

	if !entry.perms.Allows(access) {
		return 0, &PageError{
			Addr:   iova,
			Access: access,
			Err:    ErrPagePermissionViolation,
		}
	}

	return entry.paddr + (iova & PageMask), nil
}

// MapRange maps every page from startIOVA to endIOVA inclusive, assigning
// physical pages contiguously from startPA. An inverted range maps nothing.
func (s *AddressSpace) MapRange(
	startIOVA, endIOVA, startPA uint64,
	perms PagePermissions,
) {
	if endIOVA < startIOVA {
		return
	}

	first := AlignToPage(startIOVA)
	last := AlignToPage(endIOVA)
	pa := AlignToPage(startPA)

	for addr := first; ; addr += PageSize {
		s.pages[addr] = pageEntry{paddr: pa, perms: perms}
		pa += PageSize

		if addr == last {
			break
		}
	}
}

// UnmapRange removes every mapped page whose aligned address falls in
// [startIOVA, endIOVA]. Unmapped pages in the range are skipped. An inverted
// range removes nothing.
func (s *AddressSpace) UnmapRange(startIOVA, endIOVA uint64) {
	if endIOVA < startIOVA {
		return
	}

	first := AlignToPage(startIOVA)
	last := AlignToPage(endIOVA)

	// Walking the stored pages keeps the cost proportional to the number of
	// mappings rather than the width of the range.
	for addr := range s.pages {
		if addr >= first && addr <= last {
			delete(s.pages, addr)
		}
	}
}

// MapPages maps each (iova, pa) pair with the same permissions. The physical
// addresses of the pairs need not be contiguous. An empty list is a no-op.
func (s *AddressSpace) MapPages(pairs []PagePair, perms PagePermissions) {
	for _, p := range pairs {
		s.MapPage(p.IOVA, p.PAddr, perms)
	}
}

// UnmapPages unmaps each listed page, tolerating addresses that are not
// currently mapped. An empty list is a no-op.
func (s *AddressSpace) UnmapPages(iovas []uint64) {
	for _, iova := range iovas {
		s.UnmapPage(iova)
	}
}

// IsPageMapped reports if the page containing iova has a mapping.
func (s *AddressSpace) IsPageMapped(iova uint64) bool {
	_, found := s.pages[AlignToPage(iova)]
	return found
}

// Permissions returns the permissions of the page containing iova, failing
// with ErrPageNotMapped if the page has no mapping.
func (s *AddressSpace) Permissions(iova uint64) (PagePermissions, error) {
	entry, found := s.pages[AlignToPage(iova)]
	if !found {
		return PagePermissions{}, &PageError{
			Addr:   iova,
			Access: AccessRead,
			Err:    ErrPageNotMapped,
		}
	}

	return entry.perms, nil
}

// PageCount returns the number of distinct pages currently mapped.
func (s *AddressSpace) PageCount() int {
	return len(s.pages)
}

// Clear removes all mappings.
func (s *AddressSpace) Clear() {
	s.pages = make(map[uint64]pageEntry)
}

// Clone returns a deep copy that shares no state with the original.
func (s *AddressSpace) Clone() *AddressSpace {
	c := NewAddressSpace()
	for iova, entry := range s.pages {
		c.pages[iova] = entry
	}

	return c
}

// InvalidateCache notifies the address space of a full cache invalidation
// issued by its owner. The stored mappings are not affected; the hook exists
// so a cache-coherent embedder can route invalidation events through the
// address space without the address space tracking a cache itself.
func (s *AddressSpace) InvalidateCache() {}

// InvalidatePage notifies the address space of a single-page invalidation.
// The stored mappings are not affected.
func (s *AddressSpace) InvalidatePage(iova uint64) {}

// InvalidateRange notifies the address space of a ranged invalidation. The
// stored mappings are not affected; inverted ranges are accepted.
func (s *AddressSpace) InvalidateRange(start, end uint64) {}

// InvalidateAll notifies the address space of a global invalidation. The
// stored mappings are not affected.
func (s *AddressSpace) InvalidateAll() {}
