package main

import (
	"crypto/sha256"
	"sync"

	"golang.org/x/crypto/ed25519"

	"github.com/kabili207/lorance/core/address"
)

// keyRegistry is this harness's stand-in for the out-of-band key
// distribution a real deployment of the core/wire/auth.go extension would
// need (provisioned at flash time, or via a separate enrollment protocol);
// the routing core itself never performs key distribution, only
// sign/verify (spec §1 non-goals carried through to the extension).
type keyRegistry struct {
	mu   sync.RWMutex
	keys map[address.Address]ed25519.PublicKey
}

func newKeyRegistry() *keyRegistry {
	return &keyRegistry{keys: make(map[address.Address]ed25519.PublicKey)}
}

func (r *keyRegistry) register(addr address.Address, pub ed25519.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[addr] = pub
}

func (r *keyRegistry) lookup(addr address.Address) (ed25519.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[addr]
	return pub, ok
}

// deriveKeypair produces a deterministic Ed25519 keypair for addr, so
// repeated "lorasim run" invocations with the same topology sign
// consistently without a separate key-provisioning step. Real deployments
// provision genuinely random keys at flash time; this determinism is purely
// a harness convenience.
func deriveKeypair(addr address.Address) (ed25519.PrivateKey, ed25519.PublicKey) {
	h := sha256.New()
	h.Write([]byte("lorasim-demo-seed"))
	h.Write([]byte{byte(addr), byte(addr >> 8)})
	sum := h.Sum(nil)

	priv := ed25519.NewKeyFromSeed(sum[:ed25519.SeedSize])
	return priv, priv.Public().(ed25519.PublicKey)
}
