package blindsig

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha512"
	"math/big"
)

// Verify checks that an encoded bond is a genuine signature of this mint
// and returns the embedded seed x, which uniquely identifies the bond for
// double-spend accounting.
//
// A bond is m^d mod N for m = OAEP(msgPrefix || SHA-512(N, x) || x).
// Raising the bond to the public exponent recovers m, and the envelope
// checks reject anything the mint did not sign. Every failure maps to one
// of the typed errors in this package; Verify never panics on adversarial
// input.
func Verify(p *Params, bond string) ([]byte, error) {
	b, err := DecodeBigInt(bond)
	if err != nil {
		return nil, err
	}

	// Bonds are residues mod N; b+N would otherwise verify as a second,
	// distinct bond string for the same seed.
	if b.Cmp(p.N) >= 0 {
		return nil, ErrBadEncoding
	}

	// bond^e = m^(d*e) = m mod N.
	m := new(big.Int).Exp(b, big.NewInt(int64(p.E)), p.N)

	// OAEP is all-or-nothing, so the integer must be restored to the
	// full block width: leading zero bytes of m are significant.
	msg := m.FillBytes(make([]byte, p.CipherLen))

	pre, err := rsa.DecryptOAEP(sha512.New(), nil, p.OAEPKey, msg, nil)
	if err != nil {
		return nil, ErrOAEP
	}

	if !bytes.HasPrefix(pre, p.MsgPrefix) {
		return nil, ErrMsgPrefix
	}

	tail := pre[len(p.MsgPrefix):]
	if len(tail) < p.XLen()+sha512.Size {
		return nil, ErrMsgPrefix
	}
	h := tail[:len(tail)-p.XLen()]
	x := tail[len(tail)-p.XLen():]

	if !bytes.HasPrefix(x, p.XPrefix) {
		return nil, ErrXPrefix
	}

	if !bytes.Equal(h, p.hashNX(x)) {
		return nil, ErrHashMismatch
	}

	log.Debugf("Verified bond carrying %d byte seed", len(x))

	return x, nil
}
