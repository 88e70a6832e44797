package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram range: 1us to 60s, 3 significant digits.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
	sigFigs      = 3
)

// Latency collects response times overall and per validator.
type Latency struct {
	mu       sync.Mutex
	overall  *hdrhistogram.Histogram
	byGroup  map[string]*hdrhistogram.Histogram
	failures map[string]int
}

func NewLatency() *Latency {
	return &Latency{
		overall:  hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs),
		byGroup:  make(map[string]*hdrhistogram.Histogram),
		failures: make(map[string]int),
	}
}

// Record adds one response time under group. failed counts toward the
// group's failure total.
func (l *Latency) Record(group string, d time.Duration, failed bool) {
	us := clamp(d.Microseconds())

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.overall.RecordValue(us)
	h, ok := l.byGroup[group]
	if !ok {
		h = hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs)
		l.byGroup[group] = h
	}
	_ = h.RecordValue(us)
	if failed {
		l.failures[group]++
	}
}

func clamp(us int64) int64 {
	if us < minLatencyUs {
		return minLatencyUs
	}
	if us > maxLatencyUs {
		return maxLatencyUs
	}
	return us
}

// Summary is a percentile snapshot.
type Summary struct {
	Group    string
	Count    int64
	Failures int
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	Max      time.Duration
	Mean     time.Duration
}

func summarize(group string, h *hdrhistogram.Histogram) Summary {
	return Summary{
		Group: group,
		Count: h.TotalCount(),
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		Mean:  time.Duration(h.Mean()) * time.Microsecond,
	}
}

// Overall summarises every recorded response.
func (l *Latency) Overall() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := summarize("", l.overall)
	for _, n := range l.failures {
		s.Failures += n
	}
	return s
}

// Groups summarises each group, sorted by name.
func (l *Latency) Groups() []Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Summary, 0, len(l.byGroup))
	for name, h := range l.byGroup {
		s := summarize(name, h)
		s.Failures = l.failures[name]
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// Reset discards everything recorded.
func (l *Latency) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overall.Reset()
	l.byGroup = make(map[string]*hdrhistogram.Histogram)
	l.failures = make(map[string]int)
}
