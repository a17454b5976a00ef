package blindsig

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"math/big"
)

// maxTokenAttempts bounds the re-randomization loop in NewSession. The
// padded message is nearly uniform below the OAEP modulus, so with moduli
// of equal size each attempt fails to land below N with probability under
// one half; hitting the bound indicates broken parameters rather than bad
// luck.
const maxTokenAttempts = 64

// Session holds the ephemeral client state of one bond purchase: the
// blinded token and the nonce inverse needed to unblind the protobond.
// The nonce r itself never outlives NewSession, and the inverse is wiped
// as soon as the bond is derived.
type Session struct {
	params *Params

	// nonceInv is r^-1 mod N. It is the only secret that persists
	// between token generation and unblinding.
	nonceInv *big.Int

	// token is the encoded blinded message handed to the seller.
	token string
}

// NewSession generates a fresh token under the given parameters and returns
// the session owning its ephemeral secrets.
//
// The token is (m * r^e) mod N where m is the integer form of
// OAEP(msgPrefix || SHA-512(N, x) || x) and r is a uniform nonce. The
// signer sees only a uniform residue; the envelope inside m is what Verify
// later checks.
func NewSession(p *Params) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var (
		m   *big.Int
		err error
	)
	for attempt := 0; ; attempt++ {
		if attempt == maxTokenAttempts {
			return nil, ErrBadOAEPMod
		}

		m, err = p.genMessage()
		switch err {
		case nil:
		case ErrBadOAEPMod:
			// The pad landed at or above N. Re-randomize.
			continue
		default:
			return nil, err
		}

		break
	}

	// Draw the blinding nonce r from [0, N) and compute both r^e and
	// r^-1 before letting r go out of scope. A non-invertible r would
	// betray a factor of N; retrying is correct and effectively never
	// happens.
	var nonceE, nonceInv *big.Int
	for {
		r, err := rand.Int(rand.Reader, p.N)
		if err != nil {
			return nil, err
		}

		nonceInv = new(big.Int).ModInverse(r, p.N)
		if nonceInv == nil {
			zeroBig(r)
			continue
		}

		nonceE = new(big.Int).Exp(r, big.NewInt(int64(p.E)), p.N)
		zeroBig(r)
		break
	}

	// token = (m * r^e) mod N.
	token := nonceE.Mul(nonceE, m)
	token.Mod(token, p.N)

	return &Session{
		params:   p,
		nonceInv: nonceInv,
		token:    EncodeBigInt(token),
	}, nil
}

// Token returns the encoded blinded token for this session.
func (s *Session) Token() string {
	return s.token
}

// Unblind converts a protobond received from the seller into the final
// bond: bond = protobond * r^-1 = m^d mod N. The nonce inverse is wiped
// before returning, so Unblind can succeed at most once per session.
func (s *Session) Unblind(protobond string) (string, error) {
	if s.nonceInv == nil {
		return "", ErrSessionSpent
	}

	pb, err := DecodeBigInt(protobond)
	if err != nil {
		return "", err
	}

	bond := pb.Mul(pb, s.nonceInv)
	bond.Mod(bond, s.params.N)

	zeroBig(s.nonceInv)
	s.nonceInv = nil

	return EncodeBigInt(bond), nil
}

// Close wipes any secrets still held by the session. Safe to call multiple
// times and after Unblind.
func (s *Session) Close() {
	if s.nonceInv != nil {
		zeroBig(s.nonceInv)
		s.nonceInv = nil
	}
}

// genMessage draws a fresh seed x, builds the FDH-OAEP envelope and pads
// it, returning the padded message as an integer below N.
func (p *Params) genMessage() (*big.Int, error) {
	// x = xPrefix || random bytes.
	x := make([]byte, 0, p.XLen())
	x = append(x, p.XPrefix...)
	entropy := make([]byte, p.XEntropyBytes)
	if _, err := rand.Read(entropy); err != nil {
		return nil, err
	}
	x = append(x, entropy...)

	// envelope = msgPrefix || SHA-512(N, x) || x.
	pre := make([]byte, 0, p.envelopeLen())
	pre = append(pre, p.MsgPrefix...)
	pre = append(pre, p.hashNX(x)...)
	pre = append(pre, x...)

	padded, err := rsa.EncryptOAEP(
		sha512.New(), rand.Reader, &p.OAEPKey.PublicKey, pre, nil,
	)
	if err != nil {
		return nil, err
	}
	if len(padded) != p.CipherLen {
		return nil, ErrBadOAEPMod
	}

	m := new(big.Int).SetBytes(padded)
	if m.Cmp(p.N) >= 0 {
		return nil, ErrBadOAEPMod
	}

	return m, nil
}

// zeroBig overwrites the absolute value words of z and resets it to zero.
// big.Int offers no destructor, so secrets routed through it are wiped in
// place before the value is dropped.
func zeroBig(z *big.Int) {
	words := z.Bits()
	for i := range words {
		words[i] = 0
	}
	z.SetInt64(0)
}
