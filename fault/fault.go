// Package fault records translation and permission faults in a bounded,
// insertion-ordered log with constant-time per-type counters and
// time-windowed queries.
package fault

import "github.com/sarchlab/smmu/vm"

// Type classifies a fault the way SMMUv3 event records do.
type Type int

// The supported fault types.
const (
	TranslationFault Type = iota
	PermissionFault
	AddressSizeFault
	AccessFault
)

func (t Type) String() string {
	switch t {
	case TranslationFault:
		return "translation"
	case PermissionFault:
		return "permission"
	case AddressSizeFault:
		return "address_size"
	case AccessFault:
		return "access"
	default:
		return "unknown"
	}
}

// A Record captures one fault. Time is an opaque integer assigned by the
// caller; callers must supply monotonically non-decreasing values for the
// windowed queries to be meaningful.
type Record struct {
	StreamID vm.StreamID
	PASID    vm.PASID
	Addr     uint64
	Type     Type
	Access   vm.AccessType
	Time     uint64
}
