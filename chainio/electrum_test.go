package chainio

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) *MasterPrivKey {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return NewMasterPrivKey(priv, &chaincfg.MainNetParams)
}

func randomIndex(t *testing.T) *big.Int {
	t.Helper()

	index, err := rand.Int(
		rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128),
	)
	require.NoError(t, err)

	return index
}

// TestChildDerivationConsistency is the core wallet property: the address
// derived from public material alone matches the address of the privately
// derived child key, across the 128-bit index space.
func TestChildDerivationConsistency(t *testing.T) {
	t.Parallel()

	master := testMasterKey(t)
	mpk := master.PubKey()

	indices := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		new(big.Int).Sub(
			new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1),
		),
	}
	for i := 0; i < 8; i++ {
		indices = append(indices, randomIndex(t))
	}

	for _, index := range indices {
		pubAddr, err := mpk.ChildAddress(index)
		require.NoError(t, err)

		childPriv, err := master.ChildPrivKey(index)
		require.NoError(t, err)

		privAddr, err := btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(
				childPriv.PubKey().SerializeUncompressed(),
			),
			&chaincfg.MainNetParams,
		)
		require.NoError(t, err)

		require.Equal(t, privAddr.EncodeAddress(),
			pubAddr.EncodeAddress(), "index %v", index)
	}
}

// TestChildAddressesUnlinkable asserts distinct indices give distinct
// addresses.
func TestChildAddressesUnlinkable(t *testing.T) {
	t.Parallel()

	mpk := testMasterKey(t).PubKey()

	seen := make(map[string]struct{})
	for i := 0; i < 16; i++ {
		addr, err := mpk.ChildAddress(randomIndex(t))
		require.NoError(t, err)

		_, dup := seen[addr.EncodeAddress()]
		require.False(t, dup)
		seen[addr.EncodeAddress()] = struct{}{}
	}
}

// TestMasterPubKeySerialization round-trips the wire form handed to the
// quoting service.
func TestMasterPubKeySerialization(t *testing.T) {
	t.Parallel()

	master := testMasterKey(t)
	mpk := master.PubKey()

	parsed, err := ParseMasterPubKey(
		mpk.Serialize(), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	index := randomIndex(t)
	want, err := mpk.ChildAddress(index)
	require.NoError(t, err)
	got, err := parsed.ChildAddress(index)
	require.NoError(t, err)

	require.Equal(t, want.EncodeAddress(), got.EncodeAddress())
}

// TestDerivationIsDeterministic pins that repeated derivation agrees,
// which the quote idempotence check depends on.
func TestDerivationIsDeterministic(t *testing.T) {
	t.Parallel()

	mpk := testMasterKey(t).PubKey()
	index := randomIndex(t)

	first, err := mpk.ChildAddress(index)
	require.NoError(t, err)
	second, err := mpk.ChildAddress(index)
	require.NoError(t, err)

	require.Equal(t, first.EncodeAddress(), second.EncodeAddress())
}
