package fault

import "github.com/sarchlab/smmu/datarecording"

type faultTableEntry struct {
	StreamID uint32
	PASID    uint32
	Addr     uint64
	Type     string
	Access   string
	Time     uint64
}

// DumpToRecorder writes the retained log into a DataRecorder table, oldest
// first. The table is created on first use.
func (h *Handler) DumpToRecorder(
	rec datarecording.DataRecorder,
	tableName string,
) {
	if !contains(rec.ListTables(), tableName) {
		rec.CreateTable(tableName, faultTableEntry{})
	}

	for _, r := range h.records {
		rec.InsertData(tableName, faultTableEntry{
			StreamID: uint32(r.StreamID),
			PASID:    uint32(r.PASID),
			Addr:     r.Addr,
			Type:     r.Type.String(),
			Access:   r.Access.String(),
			Time:     r.Time,
		})
	}

	rec.Flush()
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}

	return false
}
