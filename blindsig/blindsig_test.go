package blindsig

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Tests run against reduced-size keys: the protocol is size-generic and
// 2048-bit keys keep test runs fast. The envelope is shrunk to fit the
// smaller OAEP capacity.
const (
	testKeyBits       = 2048
	testEntropyBytes  = 16
	testOAEPCipherLen = testKeyBits / 8
)

var (
	testSetupOnce sync.Once
	testSignKey   *rsa.PrivateKey
	testOAEPKey   *rsa.PrivateKey
)

// testParams generates the shared test keys once and returns fresh
// parameters around them.
func testParams(t *testing.T) *Params {
	t.Helper()

	testSetupOnce.Do(func() {
		var err error
		testSignKey, err = rsa.GenerateKey(rand.Reader, testKeyBits)
		if err != nil {
			t.Fatalf("unable to generate signing key: %v", err)
		}
		testOAEPKey, err = rsa.GenerateKey(rand.Reader, testKeyBits)
		if err != nil {
			t.Fatalf("unable to generate oaep key: %v", err)
		}
	})

	params := NewParams(testSignKey.N, testSignKey.E, testOAEPKey)
	params.XEntropyBytes = testEntropyBytes
	params.CipherLen = testOAEPCipherLen

	if err := params.Validate(); err != nil {
		t.Fatalf("test params invalid: %v", err)
	}

	return params
}

// TestEncodeDecodeRoundTrip asserts decode(encode(z)) = z across the
// value range tokens live in.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(255),
		new(big.Int).Lsh(big.NewInt(1), 4095),
		new(big.Int).Sub(
			new(big.Int).Lsh(big.NewInt(1), 4096), big.NewInt(1),
		),
	}
	for i := 0; i < 16; i++ {
		z, err := rand.Int(rand.Reader, new(big.Int).Lsh(
			big.NewInt(1), 4096,
		))
		require.NoError(t, err)
		cases = append(cases, z)
	}

	for _, z := range cases {
		decoded, err := DecodeBigInt(EncodeBigInt(z))
		require.NoError(t, err)
		require.Zero(t, z.Cmp(decoded), "round trip changed value")
	}
}

// TestDecodeRejectsGarbage covers the malformed-wire-string cases.
func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"",
		"!!!not base64!!!",
		"aGVsbG8=",     // base64("hello"): not hex
		"LTB4ZGVhZA==", // base64("-0xdead"): negative
		"MHg=",         // base64("0x"): empty digits
	} {
		_, err := DecodeBigInt(input)
		require.ErrorIs(t, err, ErrBadEncoding, "input %q", input)
	}
}

// TestBlindSignRoundTrip is the full protocol happy path: a session's
// token, signed and unblinded, verifies as a bond.
func TestBlindSignRoundTrip(t *testing.T) {
	params := testParams(t)

	session, err := NewSession(params)
	require.NoError(t, err)
	defer session.Close()

	protobond, err := Sign(testSignKey, session.Token())
	require.NoError(t, err)

	bond, err := session.Unblind(protobond)
	require.NoError(t, err)

	x, err := Verify(params, bond)
	require.NoError(t, err)
	require.Len(t, x, params.XLen())
	require.Equal(t, params.XPrefix, x[:len(params.XPrefix)])

	// The bond must not simply be the token: blinding happened.
	require.NotEqual(t, session.Token(), bond)
}

// TestSignDeterministic asserts the critical determinism rule: the same
// token always yields the bit-identical protobond.
func TestSignDeterministic(t *testing.T) {
	params := testParams(t)

	session, err := NewSession(params)
	require.NoError(t, err)
	defer session.Close()

	first, err := Sign(testSignKey, session.Token())
	require.NoError(t, err)
	second, err := Sign(testSignKey, session.Token())
	require.NoError(t, err)

	require.Equal(t, first, second)
}

// TestVerifyRejectsForgery feeds random residues to Verify: they must be
// rejected without panicking, failing inside the OAEP layer.
func TestVerifyRejectsForgery(t *testing.T) {
	params := testParams(t)

	for i := 0; i < 8; i++ {
		forged, err := rand.Int(rand.Reader, params.N)
		require.NoError(t, err)

		_, err = Verify(params, EncodeBigInt(forged))
		require.Error(t, err)
		require.Contains(t, []error{ErrOAEP, ErrMsgPrefix}, err)
	}
}

// TestVerifyRejectsTampering flips one bit of an honest bond.
func TestVerifyRejectsTampering(t *testing.T) {
	params := testParams(t)

	session, err := NewSession(params)
	require.NoError(t, err)
	defer session.Close()

	protobond, err := Sign(testSignKey, session.Token())
	require.NoError(t, err)
	bond, err := session.Unblind(protobond)
	require.NoError(t, err)

	bondInt, err := DecodeBigInt(bond)
	require.NoError(t, err)
	tampered := new(big.Int).Xor(bondInt, big.NewInt(1))

	_, err = Verify(params, EncodeBigInt(tampered))
	require.Error(t, err)
}

// TestVerifyRejectsWrongKey verifies a bond against a different mint.
func TestVerifyRejectsWrongKey(t *testing.T) {
	params := testParams(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err)
	otherParams := NewParams(otherKey.N, otherKey.E, testOAEPKey)
	otherParams.XEntropyBytes = testEntropyBytes
	otherParams.CipherLen = testOAEPCipherLen

	session, err := NewSession(params)
	require.NoError(t, err)
	defer session.Close()

	protobond, err := Sign(testSignKey, session.Token())
	require.NoError(t, err)
	bond, err := session.Unblind(protobond)
	require.NoError(t, err)

	_, err = Verify(otherParams, bond)
	require.Error(t, err)
}

// TestUnblindOnlyOnce asserts the nonce inverse is destroyed after use.
func TestUnblindOnlyOnce(t *testing.T) {
	params := testParams(t)

	session, err := NewSession(params)
	require.NoError(t, err)
	defer session.Close()

	protobond, err := Sign(testSignKey, session.Token())
	require.NoError(t, err)

	_, err = session.Unblind(protobond)
	require.NoError(t, err)

	_, err = session.Unblind(protobond)
	require.ErrorIs(t, err, ErrSessionSpent)
}

// TestParamsRejectOversizedEnvelope asserts Validate enforces the OAEP
// input limit rather than letting EncryptOAEP fail downstream.
func TestParamsRejectOversizedEnvelope(t *testing.T) {
	params := testParams(t)
	params.XEntropyBytes = 4096

	require.Error(t, params.Validate())

	_, err := NewSession(params)
	require.Error(t, err)
}

// TestSignRejectsOversizedToken asserts tokens at or above the modulus
// are refused rather than silently reduced.
func TestSignRejectsOversizedToken(t *testing.T) {
	params := testParams(t)

	tooBig := new(big.Int).Add(params.N, big.NewInt(1))
	_, err := Sign(testSignKey, EncodeBigInt(tooBig))
	require.Error(t, err)
}
