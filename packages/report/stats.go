// Package report summarizes a fixture tree: how many responses, timeouts
// and errors it holds and the latency distribution of the recordings.
package report

import (
	"errors"
	"net/url"
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/httpvcr/packages/fixture"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Stats aggregates fixture metadata.
type Stats struct {
	Fixtures  int64
	Responses int64
	Timeouts  int64
	Errors    int64
	Malformed int64

	ByStatus map[int]int64
	ByHost   map[string]int64

	// Latency of response fixtures, in microseconds
	histogram *hdrhistogram.Histogram
}

// NewStats returns empty stats.
func NewStats() *Stats {
	return &Stats{
		ByStatus: make(map[int]int64),
		ByHost:   make(map[string]int64),
		// 1us to 60s range, 3 significant digits
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
	}
}

// Add accounts for one metadata record.
func (s *Stats) Add(meta fixture.Metadata) {
	s.Fixtures++
	if meta.URL != "" {
		if u, err := url.Parse(meta.URL); err == nil && u.Host != "" {
			s.ByHost[u.Host]++
		}
	}

	switch {
	case meta.Timeout:
		s.Timeouts++
		return
	case meta.Error != "":
		s.Errors++
		return
	}

	s.Responses++
	s.ByStatus[meta.StatusCode]++

	latencyUs := meta.Duration().Microseconds()
	if latencyUs < minLatencyUs {
		latencyUs = minLatencyUs
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}
	_ = s.histogram.RecordValue(latencyUs)
}

// Latency is the recorded latency distribution.
type Latency struct {
	Min    time.Duration
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
	StdDev time.Duration
}

// Latency returns percentiles over the response fixtures. It is zero when
// there are none.
func (s *Stats) Latency() Latency {
	if s.histogram.TotalCount() == 0 {
		return Latency{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Latency{
		Min:    us(s.histogram.Min()),
		Mean:   us(int64(s.histogram.Mean())),
		P50:    us(s.histogram.ValueAtQuantile(50)),
		P95:    us(s.histogram.ValueAtQuantile(95)),
		P99:    us(s.histogram.ValueAtQuantile(99)),
		Max:    us(s.histogram.Max()),
		StdDev: us(int64(s.histogram.StdDev())),
	}
}

// StatusCodes returns the observed status codes in ascending order.
func (s *Stats) StatusCodes() []int {
	codes := make([]int, 0, len(s.ByStatus))
	for code := range s.ByStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// Hosts returns the observed hosts, most fixtures first.
func (s *Stats) Hosts() []string {
	hosts := make([]string, 0, len(s.ByHost))
	for h := range s.ByHost {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool {
		if s.ByHost[hosts[i]] != s.ByHost[hosts[j]] {
			return s.ByHost[hosts[i]] > s.ByHost[hosts[j]]
		}
		return hosts[i] < hosts[j]
	})
	return hosts
}

// Collect walks root and aggregates every fixture found. Metadata that
// cannot be decoded is counted as malformed instead of failing the walk.
func Collect(root string) (*Stats, error) {
	stats := NewStats()
	store := fixture.NewStore()
	err := fixture.Walk(root, func(e fixture.Entry) error {
		meta, err := store.ReadHeaders(e.Path)
		if err != nil {
			if errors.Is(err, fixture.ErrMalformedFixture) {
				stats.Fixtures++
				stats.Malformed++
				return nil
			}
			return err
		}
		stats.Add(meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
