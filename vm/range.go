package vm

import "sort"

// An AddressRange is a maximal run of contiguous mapped pages. End is the
// address of the last byte in the run.
type AddressRange struct {
	Start uint64
	End   uint64
}

// Size returns the number of bytes the range covers.
func (r AddressRange) Size() uint64 {
	return r.End - r.Start + 1
}

// MappedRanges partitions the mapped pages into maximal runs of contiguous
// page addresses. A run breaks whenever the next sequential page is not
// mapped. Contiguity is judged on the I/O virtual side only; the physical
// addresses and permissions of the pages play no role. The order of the
// returned ranges is unspecified.
func (s *AddressSpace) MappedRanges() []AddressRange {
	if len(s.pages) == 0 {
		return nil
	}

	addrs := s.sortedPageAddrs()

	ranges := []AddressRange{{Start: addrs[0], End: addrs[0] + PageMask}}
	for _, addr := range addrs[1:] {
		last := &ranges[len(ranges)-1]
		if addr == last.End+1 {
			last.End = addr + PageMask
			continue
		}

		ranges = append(ranges, AddressRange{Start: addr, End: addr + PageMask})
	}

	return ranges
}

// Size returns the byte span from the first mapped page's start to the last
// mapped page's end, including internal gaps. An empty address space has
// size 0.
func (s *AddressSpace) Size() uint64 {
	if len(s.pages) == 0 {
		return 0
	}

	first := true
	var minAddr, maxAddr uint64
	for addr := range s.pages {
		if first {
			minAddr, maxAddr = addr, addr
			first = false
			continue
		}

		if addr < minAddr {
			minAddr = addr
		}
		if addr > maxAddr {
			maxAddr = addr
		}
	}

	return maxAddr + PageSize - minAddr
}

// HasOverlappingMappings reports if any mapped page's byte interval
// intersects [start, end]. An inverted range overlaps nothing.
func (s *AddressSpace) HasOverlappingMappings(start, end uint64) bool {
	if end < start {
		return false
	}

	for addr := range s.pages {
		if addr <= end && addr+PageMask >= start {
			return true
		}
	}

	return false
}

func (s *AddressSpace) sortedPageAddrs() []uint64 {
	addrs := make([]uint64, 0, len(s.pages))
	for addr := range s.pages {
		addrs = append(addrs, addr)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	return addrs
}
