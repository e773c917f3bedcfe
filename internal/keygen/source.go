package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// SecretKey is a 32-byte secp256k1 scalar.
type SecretKey [32]byte

// Hex returns the uppercase hex encoding of the secret.
func (k SecretKey) Hex() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// Key is a sampled secret plus any metadata the source attaches to it.
// Mnemonic is empty for raw scalar sources.
type Key struct {
	Secret   SecretKey
	Mnemonic string
}

// ErrExhausted is returned by finite sources once every key has been handed out.
var ErrExhausted = errors.New("key source exhausted")

// Source produces secret keys for the dispatch engine. Implementations must
// be safe for concurrent use.
type Source interface {
	Next() (Key, error)
}

var curveOrder = btcec.S256().N

// validScalar reports whether the bytes form a scalar in [1, N).
func validScalar(k SecretKey) bool {
	v := new(big.Int).SetBytes(k[:])
	return v.Sign() != 0 && v.Cmp(curveOrder) < 0
}

// RandomSource draws secrets from the operating system's secure random
// source. Out-of-range scalars are rejected and redrawn, so every key it
// hands out is a valid private key.
type RandomSource struct{}

// Next returns a fresh uniformly random secret. An error here means the
// secure random source itself failed, which callers should treat as fatal:
// no fallback generator would preserve the security rationale for sampling.
func (RandomSource) Next() (Key, error) {
	for {
		var k SecretKey
		if _, err := rand.Read(k[:]); err != nil {
			return Key{}, fmt.Errorf("reading secure random source: %w", err)
		}
		if validScalar(k) {
			return Key{Secret: k}, nil
		}
	}
}

// SliceSource replays a fixed list of secrets and then reports ErrExhausted.
// It exists so runs can be made deterministic in tests and benchmarks.
type SliceSource struct {
	mu   sync.Mutex
	keys []SecretKey
	next int
}

// NewSliceSource creates a finite source over the given secrets.
func NewSliceSource(keys ...SecretKey) *SliceSource {
	return &SliceSource{keys: keys}
}

func (s *SliceSource) Next() (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.keys) {
		return Key{}, ErrExhausted
	}
	k := s.keys[s.next]
	s.next++
	return Key{Secret: k}, nil
}

// MnemonicSource samples secrets through a BIP39 mnemonic: random entropy
// becomes a mnemonic sentence, the mnemonic seeds a BIP32 master key, and
// the first child key is the secret. Matches found this way carry the
// mnemonic so the wallet can be restored in standard software.
type MnemonicSource struct {
	// EntropyBits must be 128 (12 words) or 256 (24 words). Zero means 128.
	EntropyBits int
}

func (s MnemonicSource) Next() (Key, error) {
	bits := s.EntropyBits
	if bits == 0 {
		bits = 128
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return Key{}, fmt.Errorf("generating entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return Key{}, fmt.Errorf("creating mnemonic: %w", err)
	}

	seed := bip39.NewSeed(mnemonic, "")
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return Key{}, fmt.Errorf("creating master key: %w", err)
	}
	childKey, err := masterKey.NewChildKey(0)
	if err != nil {
		return Key{}, fmt.Errorf("deriving child key: %w", err)
	}

	var k SecretKey
	copy(k[:], childKey.Key)
	if !validScalar(k) {
		// Astronomically unlikely with real entropy; redraw rather than
		// hand the engine an unusable scalar.
		return s.Next()
	}
	return Key{Secret: k, Mnemonic: mnemonic}, nil
}
