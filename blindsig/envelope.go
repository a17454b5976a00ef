package blindsig

import "crypto/sha512"

// hashNX computes SHA-512 over the big-endian bytes of the signing modulus
// followed by the seed x, feeding the hash sequentially. This digest binds
// every bond to a single mint key; client and verifier must compute it
// identically.
func (p *Params) hashNX(x []byte) []byte {
	h := sha512.New()
	h.Write(p.N.Bytes())
	h.Write(x)
	return h.Sum(nil)
}
