package blindsig

import (
	"encoding/base64"
	"math/big"
	"strings"
)

// MaxTokenLen bounds the wire length of an encoded token. It is a little
// above the 1368 characters EncodeBigInt produces for a 4096-bit integer,
// and doubles as a cheap resource-exhaustion guard on the quote path.
const MaxTokenLen = 1372

// EncodeBigInt renders z in the mint's wire form: standard base64 over the
// ASCII "0x" hexadecimal rendering of the integer. Tokens, protobonds and
// bonds all travel in this form, and the redeemer database keys rows by it,
// so both steps must stay byte-stable.
func EncodeBigInt(z *big.Int) string {
	return base64.StdEncoding.EncodeToString([]byte("0x" + z.Text(16)))
}

// DecodeBigInt parses a string produced by EncodeBigInt back into an
// integer. Negative values never appear on the wire and are rejected.
func DecodeBigInt(s string) (*big.Int, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBadEncoding
	}

	hexStr := strings.TrimPrefix(string(raw), "0x")
	if hexStr == "" {
		return nil, ErrBadEncoding
	}

	z, ok := new(big.Int).SetString(hexStr, 16)
	if !ok || z.Sign() < 0 {
		return nil, ErrBadEncoding
	}

	// Only the exact encoder output is accepted, so one integer has
	// exactly one wire form.
	if EncodeBigInt(z) != s {
		return nil, ErrBadEncoding
	}

	return z, nil
}
