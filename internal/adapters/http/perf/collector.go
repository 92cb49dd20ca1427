package perf

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes the three timing sources.
type EntryKind uint8

const (
	// KindRequest is an inbound page or form request.
	KindRequest EntryKind = iota
	// KindQuery is a session-persistence query.
	KindQuery
	// KindUpstream is an outbound call to the venue API.
	KindUpstream
)

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Path       string // "GET /events/{id}", "QueryContext" or "POST /auth/login"
	StatusCode int    // HTTP status (0 for queries and transport failures)
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer for timing entries.
// Writes never block on readers; when full, the oldest entry is overwritten.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	total   atomic.Int64
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: size > 0 (non-positive falls back to DefaultRingSize)
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{entries: make([]Entry, size)}
}

// Record appends an entry to the ring buffer. A nil collector ignores the call.
func (c *Collector) Record(e Entry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[c.next] = e
	c.next = (c.next + 1) % len(c.entries)
	c.mu.Unlock()
	c.total.Add(1)
}

// TotalRecorded returns the total number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}

// Snapshot is the dashboard view of recent timings.
type Snapshot struct {
	TotalRecorded   int64
	RequestP50Ms    float64
	RequestP95Ms    float64
	RequestP99Ms    float64
	UpstreamP95Ms   float64
	UpstreamErrors  int
	SlowestPaths    []PathStat
	SlowestQueries  []PathStat
	SlowestUpstream []PathStat
}

// PathStat aggregates timing for a single path, query op or upstream endpoint.
type PathStat struct {
	Path    string
	AvgMs   float64
	MaxMs   float64
	Count   int
	TotalMs float64
}

// kindStats accumulates the entries of one kind.
type kindStats struct {
	durations []float64
	byPath    map[string]*PathStat
}

func (k *kindStats) add(e Entry) {
	k.durations = append(k.durations, e.DurationMs)
	s := k.byPath[e.Path]
	if s == nil {
		s = &PathStat{Path: e.Path}
		k.byPath[e.Path] = s
	}
	s.Count++
	s.TotalMs += e.DurationMs
	s.MaxMs = max(s.MaxMs, e.DurationMs)
}

// top returns the n paths with the highest average, ties broken by path.
func (k *kindStats) top(n int) []PathStat {
	list := make([]PathStat, 0, len(k.byPath))
	for _, s := range k.byPath {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	slices.SortFunc(list, func(a, b PathStat) int {
		if c := cmp.Compare(b.AvgMs, a.AvgMs); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	if n >= 0 && len(list) > n {
		list = list[:n]
	}
	return list
}

// Snapshot aggregates the entries recorded at or after since.
// Sorting happens here, so call it from the admin dashboard only.
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	buf := slices.Clone(c.entries)
	c.mu.Unlock()

	kinds := map[EntryKind]*kindStats{}
	for _, k := range []EntryKind{KindRequest, KindQuery, KindUpstream} {
		kinds[k] = &kindStats{byPath: map[string]*PathStat{}}
	}
	snap := Snapshot{TotalRecorded: c.TotalRecorded()}
	for _, e := range buf {
		k, ok := kinds[e.Kind]
		if !ok || e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		k.add(e)
		if e.Kind == KindUpstream && (e.StatusCode == 0 || e.StatusCode >= 400) {
			snap.UpstreamErrors++
		}
	}

	req, up := kinds[KindRequest], kinds[KindUpstream]
	slices.Sort(req.durations)
	slices.Sort(up.durations)
	snap.RequestP50Ms = percentile(req.durations, 50)
	snap.RequestP95Ms = percentile(req.durations, 95)
	snap.RequestP99Ms = percentile(req.durations, 99)
	snap.UpstreamP95Ms = percentile(up.durations, 95)
	snap.SlowestPaths = req.top(topN)
	snap.SlowestQueries = kinds[KindQuery].top(topN)
	snap.SlowestUpstream = up.top(topN)
	return snap
}

// percentile interpolates the p-th percentile of an ascending slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := min(lo+1, len(sorted)-1)
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
