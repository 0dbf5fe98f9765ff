package nostr

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

const (
	secretFileName = "nostr_secret.hex"
	pubkeyFileName = "nostr_pubkey.hex"
)

// KeyPair holds an agent's secp256k1 identity: a 32-byte secret and the
// derived x-only public key used for event signatures and NIP-04 envelopes.
type KeyPair struct {
	priv *btcec.PrivateKey
	pub  *btcec.PublicKey
}

// Generate creates a fresh random keypair.
func Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %v", err)
	}
	return &KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

// FromSecretHex restores a keypair from a 32-byte hex-encoded secret.
func FromSecretHex(secret string) (*KeyPair, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("decode secret hex: %v", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret must be 32 bytes, got %d", len(raw))
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	return &KeyPair{priv: priv, pub: pub}, nil
}

// Load reads the keypair from dir, generating and persisting a new one on
// first boot. The secret file is created with 0600; the key is never
// mutated after creation.
func Load(dir string) (*KeyPair, error) {
	secretPath := filepath.Join(dir, secretFileName)

	if raw, err := os.ReadFile(secretPath); err == nil {
		kp, err := FromSecretHex(string(raw))
		if err != nil {
			return nil, fmt.Errorf("load %s: %v", secretFileName, err)
		}
		return kp, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %v", secretFileName, err)
	}

	kp, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create key dir: %v", err)
	}
	if err := os.WriteFile(secretPath, []byte(kp.SecretHex()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %v", secretFileName, err)
	}
	pubPath := filepath.Join(dir, pubkeyFileName)
	if err := os.WriteFile(pubPath, []byte(kp.PublicHex()+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %v", pubkeyFileName, err)
	}
	return kp, nil
}

// SecretHex returns the 32-byte secret as lowercase hex.
func (kp *KeyPair) SecretHex() string {
	return hex.EncodeToString(kp.priv.Serialize())
}

// PublicHex returns the x-only 32-byte public key as lowercase hex. This is
// the pubkey that appears on every signed event.
func (kp *KeyPair) PublicHex() string {
	return hex.EncodeToString(schnorr.SerializePubKey(kp.pub))
}
