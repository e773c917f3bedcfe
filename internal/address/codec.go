// Package address derives canonical mainnet P2PKH addresses from serialized
// public keys. Encoding is a pure function with no shared state: sha256 of
// the key, ripemd160 of that digest, a 0x00 version byte, a 4-byte
// double-sha256 checksum, and Base58 with leading zero bytes preserved as
// leading '1' characters.
package address

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// MainNetVersion is the P2PKH network version byte.
const MainNetVersion = 0x00

// payloadLen is the decoded address length: version + hash160 + checksum.
const payloadLen = 1 + 20 + 4

// Encode returns the mainnet P2PKH address for a serialized public key.
// It accepts both 65-byte uncompressed and 33-byte compressed keys and
// never fails: every byte string has a well-defined Hash160.
func Encode(pubKey []byte) string {
	return FromHash160(btcutil.Hash160(pubKey))
}

// FromHash160 encodes an already-computed 20-byte public key hash.
func FromHash160(hash160 []byte) string {
	return base58.CheckEncode(hash160, MainNetVersion)
}

// DecodeCheck decodes a P2PKH address back to its full 25-byte versioned
// payload (version byte, hash160, checksum), verifying the checksum. It is
// the inverse of Encode over the codec's output domain.
func DecodeCheck(addr string) ([]byte, error) {
	decoded := base58.Decode(addr)
	if len(decoded) != payloadLen {
		return nil, fmt.Errorf("decoded address is %d bytes, want %d", len(decoded), payloadLen)
	}
	if decoded[0] != MainNetVersion {
		return nil, fmt.Errorf("unexpected version byte 0x%02x", decoded[0])
	}

	first := sha256.Sum256(decoded[:21])
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], decoded[21:]) {
		return nil, errors.New("checksum mismatch")
	}
	return decoded, nil
}
