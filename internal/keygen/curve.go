package keygen

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// DerivePublicKey maps a secret scalar to its serialized secp256k1 public
// key point: 65 bytes uncompressed (0x04 prefix) or 33 bytes compressed.
// Uncompressed is the historical form most funded P2PKH addresses were
// derived from. The function is total over valid scalars, which is the only
// kind a Source hands out.
func DerivePublicKey(secret SecretKey, compressed bool) []byte {
	priv, _ := btcec.PrivKeyFromBytes(secret[:])
	if compressed {
		return priv.PubKey().SerializeCompressed()
	}
	return priv.PubKey().SerializeUncompressed()
}

// WIF returns the mainnet wallet import format encoding of the secret.
// The compressed flag must match the one used for address derivation or
// wallet software will reconstruct a different address.
func WIF(secret SecretKey, compressed bool) (string, error) {
	priv, _ := btcec.PrivKeyFromBytes(secret[:])
	wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, compressed)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}
