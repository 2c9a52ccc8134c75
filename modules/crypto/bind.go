package crypto

import (
	"encoding/base64"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/modules"
)

const (
	ModuleName = "crypto"

	DefaultKeyLifetime = time.Hour
)

// Loader exposes the crypto functions. A nil provider gets a fresh Crypto
// that is closed with the host's other resources.
func Loader(env modules.Env, provider Provider) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		p := provider
		if p == nil {
			c := New(DefaultKeyLifetime)
			env.Resources.Track(c)
			p = c
		}
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		data := func(v goja.Value, what string) []byte {
			raw, ok := toBytes(v)
			if !ok {
				b.Throw("%s must be an ArrayBuffer, an array of bytes or a string", what)
			}
			return raw
		}
		out := func(res []byte, err error) goja.Value {
			if err != nil {
				b.Throw("%s", err)
			}
			return jsconv.ToValue(rt, res)
		}

		_ = exports.Set("getHashAlgorithms", func() []string { return p.HashAlgorithms() })
		_ = exports.Set("hash", func(d goja.Value, alg string) goja.Value {
			return out(p.Hash(data(d, "data"), alg))
		})
		_ = exports.Set("hmac", func(d, key goja.Value, alg string) goja.Value {
			return out(p.HMAC(data(d, "data"), data(key, "key"), alg))
		})
		_ = exports.Set("randomBytes", func(n int) goja.Value {
			return out(p.RandomBytes(n))
		})
		_ = exports.Set("symmetricEncrypt", func(d, key goja.Value, cipherName string) goja.Value {
			return out(p.SymmetricEncrypt(data(d, "data"), data(key, "key"), cipherName))
		})
		_ = exports.Set("symmetricDecrypt", func(d, key goja.Value, cipherName string) goja.Value {
			return out(p.SymmetricDecrypt(data(d, "data"), data(key, "key"), cipherName))
		})
		_ = exports.Set("generateKeys", func() string {
			pub, err := p.GenerateKeys()
			if err != nil {
				b.Throw("%s", err)
			}
			return pub
		})
		_ = exports.Set("seal", func(d goja.Value, recipient, sender string) goja.Value {
			return out(p.Seal(data(d, "data"), recipient, sender))
		})
		_ = exports.Set("open", func(d goja.Value, sender, recipient string) goja.Value {
			return out(p.Open(data(d, "data"), sender, recipient))
		})
		_ = exports.Set("sign", func(d goja.Value, seed string) goja.Value {
			return out(p.Sign(data(d, "data"), seed))
		})
		_ = exports.Set("verify", func(d, sig goja.Value, publicKey string) bool {
			ok, err := p.Verify(data(d, "data"), data(sig, "signature"), publicKey)
			if err != nil {
				b.Throw("%s", err)
			}
			return ok
		})
		_ = exports.Set("createSigningKey", func(kind string) goja.Value {
			key, err := p.CreateSigningKey(kind)
			if err != nil {
				b.Throw("%s", err)
			}
			obj := rt.NewObject()
			_ = obj.Set("seed", key.Seed)
			_ = obj.Set("publicKey", key.PublicKey)
			return obj
		})
		_ = exports.Set("encodeBase64", func(d goja.Value) string {
			return base64.StdEncoding.EncodeToString(data(d, "data"))
		})
		_ = exports.Set("decodeBase64", func(s string) goja.Value {
			return out(base64.StdEncoding.DecodeString(s))
		})
	}
}

func toBytes(v goja.Value) ([]byte, bool) {
	if !jsbind.IsSet(v) {
		return nil, false
	}
	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return x.Bytes(), true
	case []byte:
		return x, true
	case string:
		return []byte(x), true
	case []any:
		out := make([]byte, len(x))
		for i, e := range x {
			switch n := e.(type) {
			case int64:
				out[i] = byte(n)
			case float64:
				out[i] = byte(int64(n))
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}
