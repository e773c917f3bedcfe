package corpus

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// LoadConfig configures corpus loading.
type LoadConfig struct {
	// Path to a newline-delimited address file, or to a directory whose
	// files are partitions of the same corpus.
	Path string

	// Index configuration, passed through to NewSuffixIndex.
	SuffixLen      int
	UseFilter      bool
	FilterFPR      float64
	EstimatedCount int

	// MaxOpenFiles bounds how many partitions are read concurrently
	// (0 = default).
	MaxOpenFiles int
}

const defaultMaxOpenFiles = 5

// loader batch size, amortizes index lock acquisition.
const loadBatchSize = 10000

// Load builds a SuffixIndex from the corpus source. Partitioning is purely
// a file-size convenience: every file under a directory path is merged into
// one index and ingestion order does not matter.
//
// A missing or empty corpus is a degraded environment, not an error: the
// condition is logged once and an empty index is returned, so every
// membership query in the run answers false.
func Load(cfg LoadConfig) (*SuffixIndex, error) {
	ix, err := NewSuffixIndex(IndexConfig{
		SuffixLen:      cfg.SuffixLen,
		UseFilter:      cfg.UseFilter,
		FilterFPR:      cfg.FilterFPR,
		EstimatedCount: cfg.EstimatedCount,
	})
	if err != nil {
		return nil, err
	}

	partitions, err := partitionPaths(cfg.Path)
	if err != nil {
		log.Printf("WARNING: corpus source %s unavailable (%v) - running with an empty index, no match is possible", cfg.Path, err)
		ix.Finalize()
		return ix, nil
	}

	maxOpen := cfg.MaxOpenFiles
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenFiles
	}

	start := time.Now()
	var loaded, skipped int64

	var g errgroup.Group
	g.SetLimit(maxOpen)
	for _, path := range partitions {
		path := path
		g.Go(func() error {
			n, s, err := loadPartition(ix, path)
			if err != nil {
				return err
			}
			atomic.AddInt64(&loaded, n)
			atomic.AddInt64(&skipped, s)
			log.Printf("Loaded partition %s (%d addresses)", filepath.Base(path), n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix.Finalize()

	if ix.TotalAddresses() == 0 {
		log.Printf("WARNING: corpus source %s is empty - no match is possible this run", cfg.Path)
	} else {
		log.Printf("Loaded %d addresses (%d buckets, %d skipped) in %v (%.1f MB memory)",
			ix.TotalAddresses(), ix.Len(), skipped,
			time.Since(start).Round(time.Millisecond),
			float64(ix.MemoryUsage())/(1024*1024))
	}
	return ix, nil
}

// partitionPaths resolves the corpus path to the list of files to ingest.
func partitionPaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(path, entry.Name()))
	}
	return paths, nil
}

// loadPartition ingests one partition file. Only P2PKH entries (leading
// '1') are kept; everything else in the dataset is an encoding the search
// never produces.
func loadPartition(ix *SuffixIndex, path string) (loaded, skipped int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening partition: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	batch := make([]string, 0, loadBatchSize)
	for scanner.Scan() {
		addr := strings.TrimSpace(scanner.Text())
		if addr == "" {
			continue
		}
		if !strings.HasPrefix(addr, "1") {
			skipped++
			continue
		}

		batch = append(batch, addr)
		if len(batch) >= loadBatchSize {
			ix.AddBatch(batch)
			loaded += int64(len(batch))
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		ix.AddBatch(batch)
		loaded += int64(len(batch))
	}

	if err := scanner.Err(); err != nil {
		return loaded, skipped, fmt.Errorf("scanning %s: %w", path, err)
	}
	return loaded, skipped, nil
}
