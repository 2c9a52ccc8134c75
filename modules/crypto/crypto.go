// Package crypto offers hashing, symmetric and curve encryption and
// signatures to accessors.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/nats-io/nkeys"
	"github.com/synadia-io/accessorhost/internal/ttlmap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

const DefaultCipher = "aes-gcm"

var (
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
	ErrUnknownCipher    = errors.New("unknown cipher")
	ErrUnknownKey       = errors.New("no key pair held for public key")
	ErrUnknownKeyKind   = errors.New("unknown signing key kind")
	ErrCiphertext       = errors.New("ciphertext too short")
)

var hashes = map[string]func() hash.Hash{
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha224":   sha256.New224,
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
	"blake2b-256": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

var keyKinds = map[string]nkeys.PrefixByte{
	"user":     nkeys.PrefixByteUser,
	"account":  nkeys.PrefixByteAccount,
	"server":   nkeys.PrefixByteServer,
	"operator": nkeys.PrefixByteOperator,
	"cluster":  nkeys.PrefixByteCluster,
}

// SigningKey is a freshly minted nkey.
type SigningKey struct {
	Seed      string `json:"seed"`
	PublicKey string `json:"publicKey"`
}

// Provider is what the crypto module asks of its backend.
type Provider interface {
	HashAlgorithms() []string
	Hash(data []byte, algorithm string) ([]byte, error)
	HMAC(data, key []byte, algorithm string) ([]byte, error)
	RandomBytes(n int) ([]byte, error)
	SymmetricEncrypt(data, key []byte, cipherName string) ([]byte, error)
	SymmetricDecrypt(data, key []byte, cipherName string) ([]byte, error)
	GenerateKeys() (string, error)
	Seal(data []byte, recipientPublicKey, senderPublicKey string) ([]byte, error)
	Open(data []byte, senderPublicKey, recipientPublicKey string) ([]byte, error)
	Sign(data []byte, seed string) ([]byte, error)
	Verify(data, sig []byte, publicKey string) (bool, error)
	CreateSigningKey(kind string) (SigningKey, error)
}

// Crypto is the default Provider. Curve key pairs it generates stay in a
// key ring until their lifetime runs out.
type Crypto struct {
	random  io.Reader
	keyring *ttlmap.TTLMap[nkeys.KeyPair]
}

var _ Provider = (*Crypto)(nil)

type Option func(*Crypto)

// WithRandom replaces crypto/rand as the source of nonces and random bytes.
func WithRandom(r io.Reader) Option {
	return func(c *Crypto) { c.random = r }
}

func New(keyLifetime time.Duration, opts ...Option) *Crypto {
	c := &Crypto{
		random:  rand.Reader,
		keyring: ttlmap.New[nkeys.KeyPair](keyLifetime),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Crypto) Close() error {
	for _, kp := range c.keyring.Values() {
		kp.Wipe()
	}
	return c.keyring.Close()
}

func (c *Crypto) HashAlgorithms() []string {
	names := make([]string, 0, len(hashes))
	for n := range hashes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func newHash(algorithm string) (func() hash.Hash, error) {
	h, ok := hashes[strings.ToLower(algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
	return h, nil
}

func (c *Crypto) Hash(data []byte, algorithm string) ([]byte, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return nil, err
	}
	hh := h()
	hh.Write(data)
	return hh.Sum(nil), nil
}

func (c *Crypto) HMAC(data, key []byte, algorithm string) ([]byte, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(h, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (c *Crypto) RandomBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(c.random, b); err != nil {
		return nil, err
	}
	return b, nil
}

// aead builds AES-GCM. Keys that are not 16, 24 or 32 bytes long are
// stretched with sha256 first.
func aead(key []byte, cipherName string) (cipher.AEAD, error) {
	if cipherName == "" {
		cipherName = DefaultCipher
	}
	if !strings.EqualFold(cipherName, DefaultCipher) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCipher, cipherName)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		sum := sha256.Sum256(key)
		key = sum[:]
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SymmetricEncrypt returns the nonce followed by the sealed data.
func (c *Crypto) SymmetricEncrypt(data, key []byte, cipherName string) ([]byte, error) {
	gcm, err := aead(key, cipherName)
	if err != nil {
		return nil, err
	}
	nonce, err := c.RandomBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (c *Crypto) SymmetricDecrypt(data, key []byte, cipherName string) ([]byte, error) {
	gcm, err := aead(key, cipherName)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrCiphertext
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

// GenerateKeys creates a curve key pair, keeps it in the key ring and
// returns its public key.
func (c *Crypto) GenerateKeys() (string, error) {
	kp, err := nkeys.CreateCurveKeysWithRand(c.random)
	if err != nil {
		return "", err
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return "", err
	}
	c.keyring.Put(pub, kp)
	return pub, nil
}

func (c *Crypto) held(pub string) (nkeys.KeyPair, error) {
	kp, ok := c.keyring.Get(pub)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, pub)
	}
	return kp, nil
}

// Seal encrypts data for recipient using the held key pair of sender.
func (c *Crypto) Seal(data []byte, recipientPublicKey, senderPublicKey string) ([]byte, error) {
	kp, err := c.held(senderPublicKey)
	if err != nil {
		return nil, err
	}
	return kp.SealWithRand(data, recipientPublicKey, c.random)
}

// Open decrypts data from sender using the held key pair of recipient.
func (c *Crypto) Open(data []byte, senderPublicKey, recipientPublicKey string) ([]byte, error) {
	kp, err := c.held(recipientPublicKey)
	if err != nil {
		return nil, err
	}
	return kp.Open(data, senderPublicKey)
}

func (c *Crypto) Sign(data []byte, seed string) ([]byte, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()
	return kp.Sign(data)
}

// Verify reports false for a signature that does not match. The error is
// reserved for a public key that cannot be parsed.
func (c *Crypto) Verify(data, sig []byte, publicKey string) (bool, error) {
	kp, err := nkeys.FromPublicKey(publicKey)
	if err != nil {
		return false, err
	}
	return kp.Verify(data, sig) == nil, nil
}

func (c *Crypto) CreateSigningKey(kind string) (SigningKey, error) {
	if kind == "" {
		kind = "user"
	}
	prefix, ok := keyKinds[strings.ToLower(kind)]
	if !ok {
		return SigningKey{}, fmt.Errorf("%w: %s", ErrUnknownKeyKind, kind)
	}
	kp, err := nkeys.CreatePairWithRand(prefix, c.random)
	if err != nil {
		return SigningKey{}, err
	}
	defer kp.Wipe()
	seed, err := kp.Seed()
	if err != nil {
		return SigningKey{}, err
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return SigningKey{}, err
	}
	return SigningKey{Seed: string(seed), PublicKey: pub}, nil
}
