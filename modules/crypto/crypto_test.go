package crypto

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/nats-io/nkeys"
	"github.com/synadia-io/accessorhost/internal/loop"
	"github.com/synadia-io/accessorhost/modules"
)

func newCrypto(t *testing.T) *Crypto {
	t.Helper()
	c := New(time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHash(t *testing.T) {
	c := newCrypto(t)
	cases := map[string]string{
		"md5":      "900150983cd24fb0d6963f7d28e17f72",
		"sha1":     "a9993e364706816aba3e25717850c26c9cd0d89d",
		"sha256":   "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		"sha3-256": "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532",
		"SHA224":   "23097d223405d8228642a477bda255b32aadbce4bda0b3f7e36c9da7",
	}
	for alg, want := range cases {
		sum, err := c.Hash([]byte("abc"), alg)
		be.NilErr(t, err)
		be.Equal(t, want, hex.EncodeToString(sum))
	}

	sum, err := c.Hash([]byte("abc"), "blake2b-256")
	be.NilErr(t, err)
	be.Equal(t, 32, len(sum))

	_, err = c.Hash([]byte("abc"), "crc32")
	be.True(t, errors.Is(err, ErrUnknownAlgorithm))

	be.AllEqual(t, []string{
		"blake2b-256", "md5", "sha1", "sha224", "sha256", "sha3-256", "sha3-512", "sha384", "sha512",
	}, c.HashAlgorithms())
}

func TestHMAC(t *testing.T) {
	c := newCrypto(t)
	mac, err := c.HMAC([]byte("The quick brown fox jumps over the lazy dog"), []byte("key"), "sha256")
	be.NilErr(t, err)
	be.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", hex.EncodeToString(mac))
}

func TestSymmetricRoundTrip(t *testing.T) {
	c := newCrypto(t)
	for _, key := range [][]byte{bytes.Repeat([]byte{1}, 32), []byte("passphrase")} {
		sealed, err := c.SymmetricEncrypt([]byte("secret"), key, "")
		be.NilErr(t, err)
		be.Equal(t, 12+len("secret")+16, len(sealed))

		plain, err := c.SymmetricDecrypt(sealed, key, "aes-gcm")
		be.NilErr(t, err)
		be.Equal(t, "secret", string(plain))
	}

	_, err := c.SymmetricEncrypt([]byte("x"), []byte("k"), "des")
	be.True(t, errors.Is(err, ErrUnknownCipher))
	_, err = c.SymmetricDecrypt([]byte{1, 2}, []byte("k"), "")
	be.True(t, errors.Is(err, ErrCiphertext))

	sealed, err := c.SymmetricEncrypt([]byte("secret"), []byte("right"), "")
	be.NilErr(t, err)
	_, err = c.SymmetricDecrypt(sealed, []byte("wrong"), "")
	be.Nonzero(t, err)
}

func TestSealOpen(t *testing.T) {
	c := newCrypto(t)
	alice, err := c.GenerateKeys()
	be.NilErr(t, err)
	bob, err := c.GenerateKeys()
	be.NilErr(t, err)
	be.True(t, nkeys.IsValidPublicCurveKey(alice))

	sealed, err := c.Seal([]byte("hi bob"), bob, alice)
	be.NilErr(t, err)
	plain, err := c.Open(sealed, alice, bob)
	be.NilErr(t, err)
	be.Equal(t, "hi bob", string(plain))

	_, err = c.Seal([]byte("x"), bob, "XUNKNOWN")
	be.True(t, errors.Is(err, ErrUnknownKey))
}

func TestKeysExpire(t *testing.T) {
	c := New(100 * time.Millisecond)
	defer c.Close()
	pub, err := c.GenerateKeys()
	be.NilErr(t, err)
	time.Sleep(200 * time.Millisecond)
	_, err = c.Seal([]byte("x"), pub, pub)
	be.True(t, errors.Is(err, ErrUnknownKey))
}

func TestSignVerify(t *testing.T) {
	c := newCrypto(t)
	key, err := c.CreateSigningKey("account")
	be.NilErr(t, err)
	be.True(t, strings.HasPrefix(key.Seed, "SA"))
	be.True(t, strings.HasPrefix(key.PublicKey, "A"))

	sig, err := c.Sign([]byte("payload"), key.Seed)
	be.NilErr(t, err)
	ok, err := c.Verify([]byte("payload"), sig, key.PublicKey)
	be.NilErr(t, err)
	be.True(t, ok)
	ok, err = c.Verify([]byte("tampered"), sig, key.PublicKey)
	be.NilErr(t, err)
	be.False(t, ok)

	_, err = c.Verify([]byte("payload"), sig, "garbage")
	be.Nonzero(t, err)
	_, err = c.CreateSigningKey("wizard")
	be.True(t, errors.Is(err, ErrUnknownKeyKind))
}

func TestRandomBytes(t *testing.T) {
	c := New(time.Minute, WithRandom(bytes.NewReader(bytes.Repeat([]byte{7}, 64))))
	defer c.Close()
	b, err := c.RandomBytes(4)
	be.NilErr(t, err)
	be.AllEqual(t, []byte{7, 7, 7, 7}, b)
	_, err = c.RandomBytes(-1)
	be.Nonzero(t, err)
}

func TestScriptBinding(t *testing.T) {
	l := loop.New(nil)
	l.Start(context.Background())
	t.Cleanup(func() {
		l.Stop()
		l.Wait(time.Second)
	})

	env := modules.Env{Dispatcher: l}.WithDefaults()
	t.Cleanup(func() { _ = env.Resources.CloseAll() })

	rt := goja.New()
	registry := require.NewRegistry()
	registry.RegisterNativeModule(ModuleName, Loader(env, nil))
	registry.Enable(rt)

	var got goja.Value
	err := l.Do(context.Background(), func() error {
		var err error
		got, err = rt.RunString(`
			var crypto = require('crypto');
			var key = crypto.createSigningKey('user');
			var sig = crypto.sign('hello', key.seed);
			var sealed = crypto.symmetricEncrypt([104, 105], 'pw');
			var a = crypto.generateKeys();
			var b = crypto.generateKeys();
			var boxed = crypto.seal('curve', b, a);
			[
				crypto.verify('hello', sig, key.publicKey),
				crypto.encodeBase64(crypto.symmetricDecrypt(sealed, 'pw')),
				crypto.encodeBase64(crypto.open(boxed, a, b)),
				crypto.hash('abc', 'sha256').byteLength,
				crypto.getHashAlgorithms().length
			].join(',');
		`)
		return err
	})
	be.NilErr(t, err)
	be.Equal(t, "true,aGk=,Y3VydmU=,32,9", got.String())
	be.Equal(t, 1, env.Resources.Len())

	err = l.Do(context.Background(), func() error {
		_, err := rt.RunString(`require('crypto').hash({}, 'sha256')`)
		return err
	})
	be.Nonzero(t, err)
}
