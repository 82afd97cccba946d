package ledger

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
)

// LoadOrCreateKey loads the issuer's secp256k1 key from path, a hex encoded
// private key. When the file does not exist a new key is generated and saved
// with owner-only permissions. created reports whether that happened.
func LoadOrCreateKey(path string) (key *ecdsa.PrivateKey, created bool, err error) {
	if path == "" {
		return nil, false, errors.New("key file path is empty")
	}

	key, err = crypto.LoadECDSA(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("load key %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("create key dir: %w", err)
	}
	key, err = crypto.GenerateKey()
	if err != nil {
		return nil, false, fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, false, fmt.Errorf("save key %s: %w", path, err)
	}
	return key, true, nil
}

// AddressOf returns the chain address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
