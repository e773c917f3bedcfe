// Package corpus holds the funded-address corpus in a memory-bounded index
// keyed on address suffixes. Only the trailing characters of each entry are
// used as the lookup key; full addresses are retained per bucket so a
// suffix hit can always be confirmed against the exact string.
package corpus

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Suffix length bounds, matching the configuration surface: shorter
// suffixes save memory but put more addresses in each bucket.
const (
	MinSuffixLen     = 1
	MaxSuffixLen     = 26
	DefaultSuffixLen = 8
)

// DefaultFilterFPR is the false-positive rate used when the optional
// probabilistic filter is enabled without an explicit rate.
const DefaultFilterFPR = 1e-6

// IndexConfig configures a SuffixIndex.
type IndexConfig struct {
	// SuffixLen is the number of trailing characters used as the bucket
	// key (MinSuffixLen..MaxSuffixLen). Zero means DefaultSuffixLen.
	SuffixLen int

	// UseFilter enables a bloom filter over suffixes. The filter only
	// short-circuits definite misses; query results are identical with it
	// on or off.
	UseFilter bool

	// FilterFPR is the filter's false-positive rate. Zero means
	// DefaultFilterFPR.
	FilterFPR float64

	// EstimatedCount sizes the buckets and filter up front (0 = auto).
	EstimatedCount int
}

// SuffixIndex answers membership queries for the funded-address corpus.
// Writes are only valid during the load phase; after Finalize the index is
// read-only and queries take no locks.
type SuffixIndex struct {
	suffixLen int

	// Bucket key is the last suffixLen characters of an address. Buckets
	// keep every full address sharing the suffix; collisions are expected
	// and retained.
	buckets map[string][]string

	// Optional probabilistic layer over suffixes. Nil when disabled.
	filter *bloom.BloomFilter

	total int

	mu sync.Mutex
}

// NewSuffixIndex creates an empty index. The suffix length is validated
// here so a bad configuration is rejected before any load or dispatch work
// begins.
func NewSuffixIndex(cfg IndexConfig) (*SuffixIndex, error) {
	if cfg.SuffixLen == 0 {
		cfg.SuffixLen = DefaultSuffixLen
	}
	if cfg.SuffixLen < MinSuffixLen || cfg.SuffixLen > MaxSuffixLen {
		return nil, fmt.Errorf("suffix length %d out of range %d-%d", cfg.SuffixLen, MinSuffixLen, MaxSuffixLen)
	}

	capacity := cfg.EstimatedCount
	if capacity == 0 {
		capacity = 1_000_000
	}

	ix := &SuffixIndex{
		suffixLen: cfg.SuffixLen,
		buckets:   make(map[string][]string, capacity),
	}
	if cfg.UseFilter {
		fpr := cfg.FilterFPR
		if fpr == 0 {
			fpr = DefaultFilterFPR
		}
		ix.filter = bloom.NewWithEstimates(uint(capacity), fpr)
	}
	return ix, nil
}

// SuffixLen returns the configured suffix length.
func (ix *SuffixIndex) SuffixLen() int {
	return ix.suffixLen
}

func (ix *SuffixIndex) suffix(addr string) string {
	if len(addr) <= ix.suffixLen {
		return addr
	}
	return addr[len(addr)-ix.suffixLen:]
}

// Add inserts a single corpus entry.
func (ix *SuffixIndex) Add(addr string) {
	ix.mu.Lock()
	ix.add(addr)
	ix.mu.Unlock()
}

// AddBatch inserts multiple corpus entries under one lock acquisition.
func (ix *SuffixIndex) AddBatch(addrs []string) {
	ix.mu.Lock()
	for _, addr := range addrs {
		ix.add(addr)
	}
	ix.mu.Unlock()
}

func (ix *SuffixIndex) add(addr string) {
	sfx := ix.suffix(addr)
	ix.buckets[sfx] = append(ix.buckets[sfx], addr)
	if ix.filter != nil {
		ix.filter.AddString(sfx)
	}
	ix.total++
}

// Finalize sorts each bucket and drops duplicate entries (corpus partitions
// may overlap). Must be called after loading; the index is read-only from
// then on.
func (ix *SuffixIndex) Finalize() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for sfx, bucket := range ix.buckets {
		if len(bucket) < 2 {
			continue
		}
		sort.Strings(bucket)
		unique := bucket[:1]
		for i := 1; i < len(bucket); i++ {
			if bucket[i] != unique[len(unique)-1] {
				unique = append(unique, bucket[i])
			}
		}
		ix.total -= len(bucket) - len(unique)
		ix.buckets[sfx] = unique
	}
}

// Contains reports whether the full address string is present in the
// corpus. A suffix or filter hit alone is never enough: the address must
// match an entry in its bucket byte for byte.
func (ix *SuffixIndex) Contains(addr string) bool {
	sfx := ix.suffix(addr)
	if ix.filter != nil && !ix.filter.TestString(sfx) {
		// Filter negatives are authoritative.
		return false
	}
	for _, full := range ix.buckets[sfx] {
		if full == addr {
			return true
		}
	}
	return false
}

// CandidateSuffix reports whether the address's suffix has a populated
// bucket, i.e. whether Contains will go on to a full-string comparison.
// Used for verbose diagnostics only.
func (ix *SuffixIndex) CandidateSuffix(addr string) bool {
	sfx := ix.suffix(addr)
	if ix.filter != nil && !ix.filter.TestString(sfx) {
		return false
	}
	return len(ix.buckets[sfx]) > 0
}

// ContainsBatch checks multiple addresses and returns the set of confirmed
// members. More efficient than calling Contains repeatedly from a hot loop.
func (ix *SuffixIndex) ContainsBatch(addrs []string) map[string]bool {
	result := make(map[string]bool)
	for _, addr := range addrs {
		if ix.Contains(addr) {
			result[addr] = true
		}
	}
	return result
}

// Len returns the number of distinct suffix buckets.
func (ix *SuffixIndex) Len() int {
	return len(ix.buckets)
}

// TotalAddresses returns the number of stored corpus entries.
func (ix *SuffixIndex) TotalAddresses() int {
	return ix.total
}

// MemoryUsage returns approximate memory usage in bytes.
func (ix *SuffixIndex) MemoryUsage() int64 {
	var mem int64
	for sfx, bucket := range ix.buckets {
		mem += int64(len(sfx) + 16)
		for _, addr := range bucket {
			mem += int64(len(addr) + 16) // string header overhead
		}
	}
	if ix.filter != nil {
		mem += int64(ix.filter.Cap() / 8)
	}
	return mem
}
