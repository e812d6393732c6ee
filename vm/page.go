// Package vm models the per-context address translation state of an SMMUv3,
// mapping device-issued I/O virtual addresses to physical addresses.
package vm

// PageSize is the translation granule. The engines only support 4KiB pages.
const PageSize uint64 = 4096

// PageMask masks the in-page offset of an address.
const PageMask uint64 = PageSize - 1

// AlignToPage aligns an address down to its page boundary.
func AlignToPage(addr uint64) uint64 {
	return addr &^ PageMask
}

// A StreamID identifies the device/stream that issues a translation request.
type StreamID uint32

// A PASID identifies a process address space within a stream.
type PASID uint32

// AccessType is the kind of access a device attempts on a page.
type AccessType int

// The supported access types.
const (
	AccessRead AccessType = iota
	AccessWrite
	AccessExecute
)

func (a AccessType) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// PagePermissions holds the capabilities granted on a mapped page. Any
// combination is legal, including none.
type PagePermissions struct {
	Read    bool
	Write   bool
	Execute bool
}

// Allows reports if the permissions grant the given access type.
func (p PagePermissions) Allows(access AccessType) bool {
	switch access {
	case AccessRead:
		return p.Read
	case AccessWrite:
		return p.Write
	case AccessExecute:
		return p.Execute
	default:
		return false
	}
}

// ReadOnly returns permissions that grant read access only.
func ReadOnly() PagePermissions {
	return PagePermissions{Read: true}
}

// ReadWrite returns permissions that grant read and write access.
func ReadWrite() PagePermissions {
	return PagePermissions{Read: true, Write: true}
}

// ReadWriteExecute returns permissions that grant all access types.
func ReadWriteExecute() PagePermissions {
	return PagePermissions{Read: true, Write: true, Execute: true}
}

// A PagePair couples one I/O virtual page with its physical page for bulk
// mapping. The pairs in a bulk call are independent of each other.
type PagePair struct {
	IOVA  uint64
	PAddr uint64
}
