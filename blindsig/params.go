// Package blindsig implements the FDH-OAEP blind RSA scheme that backs the
// bond mint: clients construct blinded tokens, the signer applies a raw RSA
// private-key operation to produce protobonds, and anyone holding the public
// parameters can unblind and verify the resulting bonds.
//
// The scheme uses two distinct 4096-bit RSA keys. The signing key is the
// usual public/private pair whose private exponent never leaves the Sign
// service. The OAEP key is fully public, private half included: it is used
// purely as an all-or-nothing padding transform inside the message, never
// for confidentiality.
package blindsig

import (
	"crypto/rsa"
	"crypto/sha512"
	"fmt"
	"math/big"
)

const (
	// XPrefix is the recognizable prefix carried by both the random seed
	// x and the padded message envelope.
	XPrefix = "[[BITCOIN BOND]]"

	// XEntropyBytes is the number of random bytes drawn for the seed x.
	XEntropyBytes = 256

	// OAEPCipherLen is the byte length of one OAEP block under a
	// 4096-bit key.
	OAEPCipherLen = 512

	// oaepMaxInput is the largest OAEP plaintext a 4096-bit key with
	// SHA-512 can hold: 512 - 2*64 - 2.
	oaepMaxInput = 382
)

// Params bundles the public cryptographic material of a mint. The value is
// immutable once built; every primitive in this package takes it explicitly
// rather than reading process-wide state.
type Params struct {
	// N is the signing modulus. Tokens, protobonds and bonds are all
	// residues mod N.
	N *big.Int

	// E is the public signing exponent.
	E int

	// OAEPKey is the padding keypair. Both halves are public by design;
	// holding the private half is what lets verifiers invert the
	// padding.
	OAEPKey *rsa.PrivateKey

	// XPrefix prefixes the random seed x inside the envelope.
	XPrefix []byte

	// MsgPrefix prefixes the envelope itself. The deployed mint uses
	// the same bytes for both prefixes.
	MsgPrefix []byte

	// XEntropyBytes is the count of random seed bytes following
	// XPrefix.
	XEntropyBytes int

	// CipherLen is the OAEP block size in bytes.
	CipherLen int
}

// NewParams builds a Params value with the production prefixes and sizes
// around the given signing public key and OAEP keypair.
func NewParams(n *big.Int, e int, oaepKey *rsa.PrivateKey) *Params {
	return &Params{
		N:             n,
		E:             e,
		OAEPKey:       oaepKey,
		XPrefix:       []byte(XPrefix),
		MsgPrefix:     []byte(XPrefix),
		XEntropyBytes: XEntropyBytes,
		CipherLen:     OAEPCipherLen,
	}
}

// XLen returns the total length of the seed x, prefix included.
func (p *Params) XLen() int {
	return len(p.XPrefix) + p.XEntropyBytes
}

// envelopeLen returns the length of the pre-padding envelope
// msgPrefix || h || x.
func (p *Params) envelopeLen() int {
	return len(p.MsgPrefix) + sha512.Size + p.XLen()
}

// maxPlaintext returns the largest plaintext the OAEP key can pad with
// SHA-512.
func (p *Params) maxPlaintext() int {
	return p.OAEPKey.PublicKey.Size() - 2*sha512.Size - 2
}

// Validate checks the internal consistency of the parameters: both keys are
// present, the exponent is at least 3, CipherLen matches the OAEP key size,
// and the envelope fits inside one OAEP block. Whether a padded message
// lands below N is not checked here; NewSession checks it per token.
func (p *Params) Validate() error {
	switch {
	case p.N == nil || p.N.Sign() <= 0:
		return fmt.Errorf("blindsig: missing signing modulus")
	case p.E < 3:
		return fmt.Errorf("blindsig: invalid public exponent %d", p.E)
	case p.OAEPKey == nil:
		return fmt.Errorf("blindsig: missing oaep key")
	case p.CipherLen != p.OAEPKey.PublicKey.Size():
		return fmt.Errorf("blindsig: cipher len %d does not match "+
			"oaep key size %d", p.CipherLen,
			p.OAEPKey.PublicKey.Size())
	case p.envelopeLen() > p.maxPlaintext():
		return fmt.Errorf("blindsig: envelope of %d bytes exceeds "+
			"oaep capacity of %d bytes", p.envelopeLen(),
			p.maxPlaintext())
	}

	return nil
}
