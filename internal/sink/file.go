// Package sink persists confirmed matches. Every implementation is
// append-only: a recorded match is never rewritten or removed.
package sink

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"plutus/internal/engine"
)

// File appends matches to a human-auditable text file. Appends are
// serialized with a mutex and written in a single call, so concurrent
// discoveries from different workers never interleave.
type File struct {
	mu   sync.Mutex
	file *os.File
}

// NewFile opens (or creates) the match file for appending. Failure here
// should be treated as fatal at startup: a run that cannot record a match
// is pointless.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening match file: %w", err)
	}
	return &File{file: f}, nil
}

// Record appends one match. The layout keeps every field needed to sweep
// the wallet recoverable by eye.
func (s *File) Record(m engine.Match) error {
	var b strings.Builder
	fmt.Fprintf(&b, "hex private key: %s\n", m.SecretHex)
	fmt.Fprintf(&b, "WIF private key: %s\n", m.WIF)
	fmt.Fprintf(&b, "public key: %s\n", m.PublicKeyHex)
	fmt.Fprintf(&b, "address: %s\n", m.Address)
	if m.Mnemonic != "" {
		fmt.Fprintf(&b, "mnemonic: %s\n", m.Mnemonic)
	}
	b.WriteString("\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.WriteString(b.String()); err != nil {
		return fmt.Errorf("appending match: %w", err)
	}
	return s.file.Sync()
}

// Close closes the underlying file.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
