package blindsig

import (
	"crypto/rsa"
	"fmt"
	"math/big"
)

// Sign applies the raw RSA private-key operation to an encoded token,
// producing the protobond: protobond = token^d mod N.
//
// Sign MUST stay deterministic and padding-free. The blinding already
// randomizes what the signer sees, and any server-side randomness would let
// an attacker submit the same token twice and combine the two distinct
// signatures into the private key. Callers get the textbook operation and
// nothing else.
func Sign(key *rsa.PrivateKey, token string) (string, error) {
	t, err := DecodeBigInt(token)
	if err != nil {
		return "", err
	}
	if t.Cmp(key.N) >= 0 {
		return "", fmt.Errorf("token exceeds signing modulus")
	}

	protobond := new(big.Int).Exp(t, key.D, key.N)
	return EncodeBigInt(protobond), nil
}
