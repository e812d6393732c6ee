// Package monitoring turns a set of translators into an HTTP server so their
// state can be inspected while a device model runs.
package monitoring

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/smmu"
)

// Monitor exposes the state of registered translators over HTTP.
type Monitor struct {
	portNumber int

	lock        sync.Mutex
	translators []*smmu.Translator

	url string
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port the server listens on. Ports below 1000 are
// rejected and a random port is used instead.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterTranslator registers a translator to be monitored.
func (m *Monitor) RegisterTranslator(t *smmu.Translator) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.translators = append(m.translators, t)
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()
	r.HandleFunc("/api/translators", m.listTranslators)
	r.HandleFunc("/api/translator/{name}", m.translatorDetails)
	r.HandleFunc("/api/tlb/{name}", m.tlbStats)
	r.HandleFunc("/api/faults/{name}", m.listFaults)
	r.HandleFunc("/api/resource", m.listResources)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	m.url = fmt.Sprintf("http://localhost:%d", port)

	fmt.Fprintf(os.Stderr, "Monitoring translators with %s\n", m.url)

	go func() {
		err := http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

// OpenDashboard opens the monitor in the default browser. StartServer must
// have been called first.
func (m *Monitor) OpenDashboard() {
	if m.url == "" {
		panic("the monitoring server is not started")
	}

	err := browser.OpenURL(m.url + "/api/translators")
	dieOnErr(err)
}

func (m *Monitor) listTranslators(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	fmt.Fprint(w, "[")
	for i, t := range m.translators {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "%q", t.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) translatorDetails(w http.ResponseWriter, r *http.Request) {
	t := m.findTranslatorOr404(w, mux.Vars(r)["name"])
	if t == nil {
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(t)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) tlbStats(w http.ResponseWriter, r *http.Request) {
	t := m.findTranslatorOr404(w, mux.Vars(r)["name"])
	if t == nil {
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	tlb := t.TLBCache()
	fmt.Fprintf(w,
		`{"size":%d,"capacity":%d,"hits":%d,"misses":%d,"hit_rate":%.6f}`,
		tlb.Size(), tlb.Capacity(),
		tlb.HitCount(), tlb.MissCount(), tlb.HitRate())
}

func (m *Monitor) listFaults(w http.ResponseWriter, r *http.Request) {
	t := m.findTranslatorOr404(w, mux.Vars(r)["name"])
	if t == nil {
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	type faultJSON struct {
		StreamID uint32 `json:"stream_id"`
		PASID    uint32 `json:"pasid"`
		Addr     uint64 `json:"addr"`
		Type     string `json:"type"`
		Access   string `json:"access"`
		Time     uint64 `json:"time"`
	}

	records := t.FaultHandler().Faults()
	out := make([]faultJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, faultJSON{
			StreamID: uint32(rec.StreamID),
			PASID:    uint32(rec.PASID),
			Addr:     rec.Addr,
			Type:     rec.Type.String(),
			Access:   rec.Access.String(),
			Time:     rec.Time,
		})
	}

	err := json.NewEncoder(w).Encode(out)
	dieOnErr(err)
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.WriteHeader(500)
		return
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		w.WriteHeader(500)
		return
	}

	memInfo, err := p.MemoryInfo()
	if err != nil {
		w.WriteHeader(500)
		return
	}

	fmt.Fprintf(w, `{"cpu_percent":%.2f,"rss":%d}`,
		cpuPercent, memInfo.RSS)
}

func (m *Monitor) findTranslatorOr404(
	w http.ResponseWriter,
	name string,
) *smmu.Translator {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, t := range m.translators {
		if t.Name() == name {
			return t
		}
	}

	w.WriteHeader(404)

	return nil
}

func dieOnErr(err error) {
	if err != nil {
		panic(err)
	}
}
