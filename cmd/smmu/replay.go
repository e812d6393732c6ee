package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/smmu"
	"github.com/sarchlab/smmu/datarecording"
	"github.com/sarchlab/smmu/monitoring"
	"github.com/sarchlab/smmu/tracing"
	"github.com/sarchlab/smmu/vm"
)

var (
	replayTLBCapacity int
	replayMaxFaults   int
	replayRecordPath  string
	replayTraceCSV    string
	replayMonitor     bool
	replayPort        int
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace-file>",
	Short: "Replay a translation trace through the engines",
	Long: `Replay reads a CSV trace of map, unmap, translate, and ` +
		`invalidate commands, drives the translation engines with it, and ` +
		`prints TLB and fault statistics.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().IntVar(&replayTLBCapacity, "tlb-capacity",
		envInt("SMMU_TLB_CAPACITY", 64), "number of TLB entries")
	replayCmd.Flags().IntVar(&replayMaxFaults, "max-faults",
		envInt("SMMU_MAX_FAULTS", 1024),
		"fault log capacity, 0 for unbounded")
	replayCmd.Flags().StringVar(&replayRecordPath, "record", "",
		"record traces and faults into a SQLite database at this path")
	replayCmd.Flags().StringVar(&replayTraceCSV, "trace-csv", "",
		"write per-translation traces into a CSV file at this path")
	replayCmd.Flags().BoolVar(&replayMonitor, "monitor", false,
		"serve translator state over HTTP while replaying")
	replayCmd.Flags().IntVar(&replayPort, "port", 0,
		"port for the monitoring server, 0 for a random port")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(_ *cobra.Command, args []string) error {
	builder := smmu.MakeBuilder().
		WithTLBCapacity(replayTLBCapacity).
		WithMaxFaults(replayMaxFaults)

	var recorder datarecording.DataRecorder
	if replayRecordPath != "" {
		recorder = datarecording.NewRecorder(replayRecordPath)
		builder = builder.WithTracer(tracing.NewDBTracer(recorder))
	}

	if replayTraceCSV != "" {
		csvTracer := tracing.NewCSVTracer(replayTraceCSV)
		csvTracer.Init()
		builder = builder.WithTracer(csvTracer)
	}

	translator := builder.Build("SMMU")

	if replayMonitor {
		monitor := monitoring.NewMonitor()
		if replayPort != 0 {
			monitor = monitor.WithPortNumber(replayPort)
		}
		monitor.RegisterTranslator(translator)
		monitor.StartServer()
	}

	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	if err := replayTrace(file, translator); err != nil {
		return err
	}

	printSummary(translator)

	if recorder != nil {
		translator.FaultHandler().DumpToRecorder(recorder, "faults")
	}

	return nil
}

func replayTrace(r io.Reader, translator *smmu.Translator) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line++
		if err := applyCommand(translator, record); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func applyCommand(t *smmu.Translator, record []string) error {
	op := record[0]
	fields := parseFields(record[1:])

	need := func(n int) error {
		if len(fields) < n {
			return fmt.Errorf("%s needs %d numeric fields, got %d",
				op, n, len(fields))
		}
		return nil
	}

	switch op {
	case "map":
		if err := need(4); err != nil {
			return err
		}
		if len(record) != 6 {
			return fmt.Errorf("map needs stream, pasid, iova, pa, perms")
		}
		perms, err := parsePerms(record[5])
		if err != nil {
			return err
		}
		space := t.CreateContext(vm.StreamID(fields[0]), vm.PASID(fields[1]))
		space.MapPage(fields[2], fields[3], perms)
	case "map_range":
		if err := need(5); err != nil {
			return err
		}
		if len(record) != 7 {
			return fmt.Errorf(
				"map_range needs stream, pasid, start, end, pa, perms")
		}
		perms, err := parsePerms(record[6])
		if err != nil {
			return err
		}
		space := t.CreateContext(vm.StreamID(fields[0]), vm.PASID(fields[1]))
		space.MapRange(fields[2], fields[3], fields[4], perms)
	case "unmap":
		if err := need(3); err != nil {
			return err
		}
		space := t.CreateContext(vm.StreamID(fields[0]), vm.PASID(fields[1]))
		space.UnmapPage(fields[2])
	case "read", "write", "exec":
		if err := need(3); err != nil {
			return err
		}
		// Faults are recorded by the translator; a replay does not stop on
		// them.
		_, _ = t.Translate(vm.StreamID(fields[0]), vm.PASID(fields[1]),
			fields[2], accessOf(op))
	case "inv_all":
		t.InvalidateAll()
	case "inv_stream":
		if err := need(1); err != nil {
			return err
		}
		t.InvalidateStream(vm.StreamID(fields[0]))
	case "inv_context":
		if err := need(2); err != nil {
			return err
		}
		t.InvalidateContext(vm.StreamID(fields[0]), vm.PASID(fields[1]))
	case "inv_page":
		if err := need(3); err != nil {
			return err
		}
		t.InvalidatePage(vm.StreamID(fields[0]), vm.PASID(fields[1]),
			fields[2])
	default:
		return fmt.Errorf("unknown command %q", op)
	}

	return nil
}

// parseFields converts the leading numeric fields of a record. Trailing
// non-numeric fields, such as permission strings, are parsed by the command
// handlers themselves.
func parseFields(strs []string) []uint64 {
	fields := make([]uint64, 0, len(strs))
	for _, s := range strs {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			break
		}

		fields = append(fields, v)
	}

	return fields
}

func parsePerms(s string) (vm.PagePermissions, error) {
	perms := vm.PagePermissions{}
	for _, c := range s {
		switch c {
		case 'r':
			perms.Read = true
		case 'w':
			perms.Write = true
		case 'x':
			perms.Execute = true
		case '-':
		default:
			return perms, fmt.Errorf("invalid permission string %q", s)
		}
	}

	return perms, nil
}

func accessOf(op string) vm.AccessType {
	switch op {
	case "write":
		return vm.AccessWrite
	case "exec":
		return vm.AccessExecute
	default:
		return vm.AccessRead
	}
}

func printSummary(t *smmu.Translator) {
	tlb := t.TLBCache()
	faults := t.FaultHandler()

	fmt.Printf("translations: %d\n", tlb.TotalLookups())
	fmt.Printf("tlb hits:     %d\n", tlb.HitCount())
	fmt.Printf("tlb misses:   %d\n", tlb.MissCount())
	fmt.Printf("tlb hit rate: %.4f\n", tlb.HitRate())
	fmt.Printf("faults:       %d\n", faults.FaultCount())

	for _, rec := range faults.Faults() {
		fmt.Printf("  [%d] stream %d pasid %d %s %s at 0x%x\n",
			rec.Time, rec.StreamID, rec.PASID,
			rec.Type, rec.Access, rec.Addr)
	}
}
