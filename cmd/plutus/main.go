// Command plutus brute-forces random Bitcoin private keys and checks the
// derived P2PKH addresses against a corpus of funded addresses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"plutus/internal/corpus"
	"plutus/internal/engine"
	"plutus/internal/keygen"
	"plutus/internal/sink"
)

var (
	// Data source
	corpusPath = flag.String("corpus", "database", "Path to corpus file or directory of address partitions")

	// Index configuration
	substring = flag.Int("substring", corpus.DefaultSuffixLen, "Trailing address characters kept as the index key (1-26)")
	useBloom  = flag.Bool("bloom", false, "Enable the bloom filter layer over suffixes")
	bloomFPR  = flag.Float64("bloom-fpr", corpus.DefaultFilterFPR, "Bloom filter false positive rate")

	// Worker configuration
	workers    = flag.Int("w", runtime.NumCPU(), "Number of concurrent workers")
	batchSize  = flag.Int("batch", 1000, "Addresses generated and checked per batch")
	compressed = flag.Bool("compressed", false, "Derive addresses from compressed public keys")

	// Key source
	useMnemonic = flag.Bool("mnemonic", false, "Sample keys through BIP39 mnemonics instead of raw scalars")
	entropyBits = flag.Int("e", 128, "Mnemonic entropy bits: 128 (12 words) or 256 (24 words)")

	// Output configuration
	outFile         = flag.String("o", "plutus.txt", "Match output file")
	dbConn          = flag.String("db", "", "Optional Postgres connection string for recording matches")
	counterInterval = flag.Int("c", 0, "Seconds between throughput reports (0 = disabled)")
	verbose         = flag.Bool("v", false, "Print every tested address (slow)")

	// Run modes
	benchBatches = flag.Int64("bench", 0, "Run a fixed number of batches, report addr/sec and exit")
	runFor       = flag.Duration("t", 0, "Stop after this duration (0 = run until interrupted)")
)

func main() {
	flag.Parse()

	// Reject bad configuration before any loading or dispatch begins.
	if *substring < corpus.MinSuffixLen || *substring > corpus.MaxSuffixLen {
		log.Fatalf("substring must be between %d and %d", corpus.MinSuffixLen, corpus.MaxSuffixLen)
	}
	if *batchSize <= 0 {
		log.Fatal("batch size must be greater than 0")
	}
	if *workers <= 0 {
		log.Fatal("worker count must be greater than 0")
	}
	if *entropyBits != 128 && *entropyBits != 256 {
		log.Fatal("entropy bits must be 128 (12 words) or 256 (24 words)")
	}

	log.Printf("Plutus collision search")
	log.Printf("Workers: %d, Batch size: %d, Suffix length: %d, Compressed keys: %v",
		*workers, *batchSize, *substring, *compressed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Loading corpus from %s...", *corpusPath)
	index, err := corpus.Load(corpus.LoadConfig{
		Path:      *corpusPath,
		SuffixLen: *substring,
		UseFilter: *useBloom,
		FilterFPR: *bloomFPR,
	})
	if err != nil {
		log.Fatalf("Failed to load corpus: %v", err)
	}

	var source keygen.Source = keygen.RandomSource{}
	if *useMnemonic {
		source = keygen.MnemonicSource{EntropyBits: *entropyBits}
	}

	cfg := engine.Config{
		Workers:     *workers,
		BatchSize:   *batchSize,
		Compressed:  *compressed,
		Verbose:     *verbose,
		MaxDuration: *runFor,
	}

	if *benchBatches > 0 {
		runBenchmark(ctx, index, source, cfg, *benchBatches)
		return
	}

	// The file store must be writable before any worker starts: failing to
	// record a match after the fact would defeat the whole run.
	fileSink, err := sink.NewFile(*outFile)
	if err != nil {
		log.Fatalf("Failed to open match file: %v", err)
	}
	defer fileSink.Close()

	sinks := sink.Multi{fileSink}
	if *dbConn != "" {
		pg, err := sink.NewPostgres(*dbConn, *workers)
		if err != nil {
			log.Fatalf("Failed to connect to match database: %v", err)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	eng := engine.New(index, source, matchLogger{sinks}, cfg)

	if *counterInterval > 0 {
		go reportProgress(ctx, eng, time.Duration(*counterInterval)*time.Second)
	}

	log.Printf("Starting %d workers...", *workers)
	if err := eng.Run(ctx); err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	stats := eng.Stats()
	log.Printf("Shutdown complete. Addresses checked: %d, Matches found: %d, Rate: %.0f addr/sec",
		stats.Addresses, stats.Matches, stats.Rate)
}

func runBenchmark(ctx context.Context, index *corpus.SuffixIndex, source keygen.Source, cfg engine.Config, batches int64) {
	log.Printf("Benchmarking %d batches...", batches)
	stats, err := engine.Benchmark(ctx, index, source, cfg, batches)
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}
	log.Printf("Benchmark: %d addresses in %v (%.2f addr/sec)",
		stats.Addresses, stats.Elapsed.Round(time.Millisecond), stats.Rate)
}

// matchLogger announces each match on the console before handing it to the
// persistent sinks.
type matchLogger struct {
	next engine.Sink
}

func (l matchLogger) Record(m engine.Match) error {
	banner := strings.Repeat("=", 60)
	fmt.Println(banner)
	fmt.Printf("MATCH FOUND! Address: %s WIF: %s\n", m.Address, m.WIF)
	fmt.Println(banner)
	return l.next.Record(m)
}

func reportProgress(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastCount int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := eng.Stats()
			rate := float64(stats.Addresses-lastCount) / interval.Seconds()
			lastCount = stats.Addresses
			log.Printf("Checked %d addresses (%.0f/sec), %d batches, %d matches",
				stats.Addresses, rate, stats.Batches, stats.Matches)
		}
	}
}
