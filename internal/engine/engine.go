// Package engine runs the brute-force hot loop: a fixed pool of workers
// pulls secrets from a key source, derives P2PKH addresses, tests them in
// batches against the shared corpus index, and records confirmed matches.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"plutus/internal/address"
	"plutus/internal/corpus"
	"plutus/internal/keygen"
)

// Match is a secret whose derived address was confirmed present, full
// string, in the corpus. Suffix-bucket hits that fail confirmation never
// become matches.
type Match struct {
	Address      string
	SecretHex    string
	WIF          string
	PublicKeyHex string
	Mnemonic     string
}

// Sink durably records matches. Record may be called concurrently from
// multiple workers; implementations serialize their own appends.
type Sink interface {
	Record(Match) error
}

// discard drops matches. Used by benchmarks, which must never touch the
// real sink.
type discard struct{}

func (discard) Record(Match) error { return nil }

// Discard returns a sink that drops every match.
func Discard() Sink { return discard{} }

// Stats is a snapshot of run counters, aggregated across workers.
type Stats struct {
	Addresses int64
	Batches   int64
	Matches   int64
	Elapsed   time.Duration
	Rate      float64 // addresses per second
}

// Config configures a run.
type Config struct {
	// Workers is the pool size (0 = number of CPU cores).
	Workers int

	// BatchSize is the number of (secret, address) pairs generated and
	// tested per batch (0 = 1000).
	BatchSize int

	// Compressed selects 33-byte public key serialization. Default is
	// uncompressed for parity with historical funded addresses.
	Compressed bool

	// Verbose logs every tested address (never the secret). Observational
	// only: it changes which lines appear in the log, not which pairs are
	// tested or which matches are produced.
	Verbose bool

	// MaxBatches stops the run after this many batches across all workers
	// (0 = unlimited).
	MaxBatches int64

	// MaxDuration stops the run after this much wall-clock time
	// (0 = unlimited).
	MaxDuration time.Duration
}

// worker tracks one unit's local counters. They are only ever written by
// the owning goroutine and summed on demand by Stats.
type worker struct {
	addresses int64
	batches   int64
	matches   int64
}

// Engine dispatches batches across the worker pool.
type Engine struct {
	index   *corpus.SuffixIndex
	source  keygen.Source
	sink    Sink
	cfg     Config
	workers []*worker

	claimed int64 // batch budget claims when MaxBatches is set
	startNS int64
	endNS   int64
}

// New creates an engine. A nil sink discards matches.
func New(index *corpus.SuffixIndex, source keygen.Source, sink Sink, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if sink == nil {
		sink = Discard()
	}

	workers := make([]*worker, cfg.Workers)
	for i := range workers {
		workers[i] = &worker{}
	}
	return &Engine{
		index:   index,
		source:  source,
		sink:    sink,
		cfg:     cfg,
		workers: workers,
	}
}

// Run blocks until the context is cancelled, a stop condition is reached,
// or the key source is exhausted. In-flight batches finish before workers
// exit, so every generated pair is tested exactly once and no partial
// match is ever recorded.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.MaxDuration)
		defer cancel()
	}

	atomic.StoreInt64(&e.startNS, time.Now().UnixNano())
	defer func() { atomic.StoreInt64(&e.endNS, time.Now().UnixNano()) }()

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range e.workers {
		w := w
		g.Go(func() error {
			return e.runWorker(ctx, w)
		})
	}
	return g.Wait()
}

func (e *Engine) runWorker(ctx context.Context, w *worker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if e.cfg.MaxBatches > 0 && atomic.AddInt64(&e.claimed, 1) > e.cfg.MaxBatches {
			return nil
		}

		if err := e.runBatch(ctx, w); err != nil {
			if errors.Is(err, keygen.ErrExhausted) {
				return nil
			}
			return err
		}
	}
}

type pair struct {
	key     keygen.Key
	address string
}

// runBatch generates up to BatchSize pairs and tests them. If the source
// runs dry mid-batch the pairs generated so far are still tested before
// the exhaustion is reported.
func (e *Engine) runBatch(ctx context.Context, w *worker) error {
	pairs := make([]pair, 0, e.cfg.BatchSize)
	var srcErr error
	for len(pairs) < e.cfg.BatchSize {
		k, err := e.source.Next()
		if err != nil {
			srcErr = err
			break
		}
		pub := keygen.DerivePublicKey(k.Secret, e.cfg.Compressed)
		pairs = append(pairs, pair{key: k, address: address.Encode(pub)})
	}
	if srcErr != nil && !errors.Is(srcErr, keygen.ErrExhausted) {
		return srcErr
	}

	addrs := make([]string, len(pairs))
	for i, p := range pairs {
		addrs[i] = p.address
	}
	found := e.index.ContainsBatch(addrs)

	for _, p := range pairs {
		if e.cfg.Verbose {
			log.Printf("tested %s", p.address)
			if !found[p.address] && e.index.CandidateSuffix(p.address) {
				log.Printf("suffix hit for %s failed full-string confirmation", p.address)
			}
		}
		if !found[p.address] {
			continue
		}
		m, err := e.buildMatch(p)
		if err != nil {
			return err
		}
		if err := e.sink.Record(m); err != nil {
			return fmt.Errorf("recording match for %s: %w", m.Address, err)
		}
		atomic.AddInt64(&w.matches, 1)
	}

	if len(pairs) > 0 {
		atomic.AddInt64(&w.addresses, int64(len(pairs)))
		atomic.AddInt64(&w.batches, 1)
	}
	return srcErr
}

func (e *Engine) buildMatch(p pair) (Match, error) {
	wif, err := keygen.WIF(p.key.Secret, e.cfg.Compressed)
	if err != nil {
		return Match{}, fmt.Errorf("encoding WIF: %w", err)
	}
	pub := keygen.DerivePublicKey(p.key.Secret, e.cfg.Compressed)
	return Match{
		Address:      p.address,
		SecretHex:    p.key.Secret.Hex(),
		WIF:          wif,
		PublicKeyHex: hex.EncodeToString(pub),
		Mnemonic:     p.key.Mnemonic,
	}, nil
}

// Stats aggregates the per-worker counters. Safe to call while the engine
// is running; the snapshot is eventually consistent with worker progress.
func (e *Engine) Stats() Stats {
	var s Stats
	for _, w := range e.workers {
		s.Addresses += atomic.LoadInt64(&w.addresses)
		s.Batches += atomic.LoadInt64(&w.batches)
		s.Matches += atomic.LoadInt64(&w.matches)
	}

	start := atomic.LoadInt64(&e.startNS)
	if start == 0 {
		return s
	}
	end := atomic.LoadInt64(&e.endNS)
	if end == 0 {
		end = time.Now().UnixNano()
	}
	s.Elapsed = time.Duration(end - start)
	if s.Elapsed > 0 {
		s.Rate = float64(s.Addresses) / s.Elapsed.Seconds()
	}
	return s
}

// Benchmark runs a fixed number of batches against the index and reports
// throughput. Matches are counted but always discarded; the caller's sink
// is never written.
func Benchmark(ctx context.Context, index *corpus.SuffixIndex, source keygen.Source, cfg Config, batches int64) (Stats, error) {
	cfg.MaxBatches = batches
	e := New(index, source, Discard(), cfg)
	if err := e.Run(ctx); err != nil {
		return Stats{}, err
	}
	return e.Stats(), nil
}
