package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plutus/internal/address"
	"plutus/internal/corpus"
	"plutus/internal/keygen"
)

func secretN(n byte) keygen.SecretKey {
	var k keygen.SecretKey
	k[31] = n
	return k
}

func addrOf(secret keygen.SecretKey, compressed bool) string {
	return address.Encode(keygen.DerivePublicKey(secret, compressed))
}

// recordingSink captures matches for inspection.
type recordingSink struct {
	mu      sync.Mutex
	matches []Match
}

func (s *recordingSink) Record(m Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, m)
	return nil
}

func (s *recordingSink) addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.matches))
	for i, m := range s.matches {
		out[i] = m.Address
	}
	sort.Strings(out)
	return out
}

// fixtureIndex builds a corpus containing the addresses of the given
// secrets plus some decoys.
func fixtureIndex(t *testing.T, secrets []keygen.SecretKey) *corpus.SuffixIndex {
	t.Helper()
	ix, err := corpus.NewSuffixIndex(corpus.IndexConfig{SuffixLen: 8})
	require.NoError(t, err)
	for _, s := range secrets {
		ix.Add(addrOf(s, false))
	}
	ix.Add("1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	ix.Add("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	ix.Finalize()
	return ix
}

func fixedSecrets(n int) []keygen.SecretKey {
	secrets := make([]keygen.SecretKey, n)
	for i := range secrets {
		secrets[i] = secretN(byte(i + 1))
	}
	return secrets
}

func TestRunFindsPlantedMatches(t *testing.T) {
	planted := []keygen.SecretKey{secretN(3), secretN(7)}
	ix := fixtureIndex(t, planted)

	rec := &recordingSink{}
	eng := New(ix, keygen.NewSliceSource(fixedSecrets(20)...), rec, Config{
		Workers:   1,
		BatchSize: 6,
	})
	require.NoError(t, eng.Run(context.Background()))

	want := []string{addrOf(planted[0], false), addrOf(planted[1], false)}
	sort.Strings(want)
	assert.Equal(t, want, rec.addresses())

	stats := eng.Stats()
	assert.EqualValues(t, 20, stats.Addresses, "every generated pair must be tested exactly once")
	assert.EqualValues(t, 2, stats.Matches)

	for _, m := range rec.matches {
		assert.NotEmpty(t, m.SecretHex)
		assert.NotEmpty(t, m.WIF)
		assert.NotEmpty(t, m.PublicKeyHex)
	}
}

// Worker count must not change which addresses are classified as matches.
func TestWorkerCountInvariance(t *testing.T) {
	planted := []keygen.SecretKey{secretN(2), secretN(9), secretN(40)}
	secrets := fixedSecrets(50)

	var results [][]string
	for _, workers := range []int{1, 8} {
		ix := fixtureIndex(t, planted)
		rec := &recordingSink{}
		eng := New(ix, keygen.NewSliceSource(secrets...), rec, Config{
			Workers:   workers,
			BatchSize: 7,
		})
		require.NoError(t, eng.Run(context.Background()))
		assert.EqualValues(t, 50, eng.Stats().Addresses)
		results = append(results, rec.addresses())
	}

	assert.Equal(t, results[0], results[1], "parallelism changed the match set")
}

func TestVerboseDoesNotChangeResults(t *testing.T) {
	planted := []keygen.SecretKey{secretN(5)}
	secrets := fixedSecrets(12)

	var results [][]string
	for _, verbose := range []bool{false, true} {
		ix := fixtureIndex(t, planted)
		rec := &recordingSink{}
		eng := New(ix, keygen.NewSliceSource(secrets...), rec, Config{
			Workers:   2,
			BatchSize: 4,
			Verbose:   verbose,
		})
		require.NoError(t, eng.Run(context.Background()))
		results = append(results, rec.addresses())
	}

	assert.Equal(t, results[0], results[1])
}

func TestMaxBatchesStopsRun(t *testing.T) {
	ix := fixtureIndex(t, nil)
	eng := New(ix, keygen.RandomSource{}, nil, Config{
		Workers:    2,
		BatchSize:  10,
		MaxBatches: 3,
	})
	require.NoError(t, eng.Run(context.Background()))

	stats := eng.Stats()
	assert.EqualValues(t, 3, stats.Batches)
	assert.EqualValues(t, 30, stats.Addresses)
}

func TestMaxDurationStopsRun(t *testing.T) {
	ix := fixtureIndex(t, nil)
	eng := New(ix, keygen.RandomSource{}, nil, Config{
		Workers:     2,
		BatchSize:   50,
		MaxDuration: 100 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not honor the duration cap")
	}
	assert.Greater(t, eng.Stats().Addresses, int64(0))
}

func TestCancelStopsRun(t *testing.T) {
	ix := fixtureIndex(t, nil)
	eng := New(ix, keygen.RandomSource{}, nil, Config{
		Workers:   4,
		BatchSize: 100,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down after cancellation")
	}
}

// mnemonicStub hands out one fixed key carrying a mnemonic, then exhausts.
type mnemonicStub struct {
	mu    sync.Mutex
	key   keygen.Key
	spent bool
}

func (s *mnemonicStub) Next() (keygen.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spent {
		return keygen.Key{}, keygen.ErrExhausted
	}
	s.spent = true
	return s.key, nil
}

func TestMatchCarriesSourceMnemonic(t *testing.T) {
	secret := secretN(11)
	ix := fixtureIndex(t, []keygen.SecretKey{secret})

	rec := &recordingSink{}
	eng := New(ix, &mnemonicStub{key: keygen.Key{Secret: secret, Mnemonic: "test mnemonic sentence"}}, rec, Config{
		Workers:   1,
		BatchSize: 4,
	})
	require.NoError(t, eng.Run(context.Background()))

	require.Len(t, rec.matches, 1)
	assert.Equal(t, "test mnemonic sentence", rec.matches[0].Mnemonic)
}

func TestBenchmark(t *testing.T) {
	ix := fixtureIndex(t, []keygen.SecretKey{secretN(1)})

	wallStart := time.Now()
	stats, err := Benchmark(context.Background(), ix, keygen.RandomSource{}, Config{
		Workers:   2,
		BatchSize: 25,
	}, 4)
	wall := time.Since(wallStart)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.Batches)
	assert.EqualValues(t, 100, stats.Addresses)
	assert.Greater(t, stats.Elapsed, time.Duration(0))
	assert.LessOrEqual(t, stats.Elapsed, wall)
	assert.InEpsilon(t, float64(stats.Addresses)/stats.Elapsed.Seconds(), stats.Rate, 0.01,
		"reported rate must be consistent with elapsed time")
}

// Benchmark runs classify matches but never record them: the planted secret
// is visited via a slice source, yet no sink ever sees it.
func TestBenchmarkDoesNotRecord(t *testing.T) {
	secret := secretN(1)
	ix := fixtureIndex(t, []keygen.SecretKey{secret})

	stats, err := Benchmark(context.Background(), ix, keygen.NewSliceSource(secret), Config{
		Workers:   1,
		BatchSize: 10,
	}, 1)
	require.NoError(t, err)

	assert.EqualValues(t, 1, stats.Addresses)
	assert.EqualValues(t, 1, stats.Matches, "the match is still counted for telemetry")
}

func TestStatsBeforeRun(t *testing.T) {
	ix := fixtureIndex(t, nil)
	eng := New(ix, keygen.RandomSource{}, nil, Config{})

	stats := eng.Stats()
	assert.Zero(t, stats.Addresses)
	assert.Zero(t, stats.Elapsed)
	assert.Zero(t, stats.Rate)
}

func BenchmarkEngineBatch(b *testing.B) {
	ix, _ := corpus.NewSuffixIndex(corpus.IndexConfig{SuffixLen: 8})
	ix.Add("1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	ix.Finalize()

	eng := New(ix, keygen.RandomSource{}, nil, Config{Workers: 1, BatchSize: 100})
	w := eng.workers[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := eng.runBatch(context.Background(), w); err != nil {
			b.Fatal(err)
		}
	}
}
