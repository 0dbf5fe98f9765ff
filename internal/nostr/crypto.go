package nostr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/zapempire/economy-engine/pkg/models"
)

// Sign computes the canonical event id and attaches a BIP-340 Schnorr
// signature over it. PubKey is stamped from the keypair; CreatedAt defaults
// to now when unset. The event is immutable once signed.
func (kp *KeyPair) Sign(ev *models.Event) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	ev.PubKey = kp.PublicHex()
	if ev.Tags == nil {
		ev.Tags = []models.Tag{}
	}

	id, err := ev.ComputeID()
	if err != nil {
		return err
	}
	digest, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("decode event id: %v", err)
	}
	sig, err := schnorr.Sign(kp.priv, digest)
	if err != nil {
		return fmt.Errorf("sign event: %v", err)
	}
	ev.ID = id
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that the event id matches the canonical serialization and
// that the Schnorr signature is valid under the event's pubkey.
func Verify(ev *models.Event) error {
	id, err := ev.ComputeID()
	if err != nil {
		return err
	}
	if id != ev.ID {
		return fmt.Errorf("event id mismatch: stated %s, computed %s", ev.ID, id)
	}

	pkBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return fmt.Errorf("decode pubkey: %v", err)
	}
	pub, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return fmt.Errorf("parse pubkey: %v", err)
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %v", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse signature: %v", err)
	}
	digest, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("decode digest: %v", err)
	}
	if !sig.Verify(digest, pub) {
		return fmt.Errorf("schnorr verification failed for event %s", ev.ID)
	}
	return nil
}

// Encrypt seals plaintext for the holder of peerPubHex (x-only) using the
// NIP-04 envelope: AES-256-CBC over PKCS#7-padded UTF-8, keyed by the raw
// ECDH x-coordinate, formatted as base64(ciphertext) + "?iv=" + base64(iv).
func (kp *KeyPair) Encrypt(plaintext, peerPubHex string) (string, error) {
	key, err := kp.sharedSecret(peerPubHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %v", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %v", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return base64.StdEncoding.EncodeToString(ct) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt opens a NIP-04 envelope produced by the holder of peerPubHex.
func (kp *KeyPair) Decrypt(envelope, peerPubHex string) (string, error) {
	ctB64, ivB64, found := strings.Cut(envelope, "?iv=")
	if !found {
		return "", fmt.Errorf("malformed envelope: missing iv separator")
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %v", err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", fmt.Errorf("decode iv: %v", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("bad iv length %d", len(iv))
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("bad ciphertext length %d", len(ct))
	}

	key, err := kp.sharedSecret(peerPubHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %v", err)
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	unpadded, err := pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// sharedSecret derives the symmetric key: the raw ECDH x-coordinate between
// our secret and the peer's x-only pubkey lifted with an 0x02 prefix.
func (kp *KeyPair) sharedSecret(peerPubHex string) ([]byte, error) {
	raw, err := hex.DecodeString(peerPubHex)
	if err != nil {
		return nil, fmt.Errorf("decode peer pubkey: %v", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("peer pubkey must be 32 bytes, got %d", len(raw))
	}
	peer, err := btcec.ParsePubKey(append([]byte{0x02}, raw...))
	if err != nil {
		return nil, fmt.Errorf("parse peer pubkey: %v", err)
	}
	return btcec.GenerateSharedSecret(kp.priv, peer), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("bad padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
