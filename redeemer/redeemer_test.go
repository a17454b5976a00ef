package redeemer

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/bondmint/bondmint/blindsig"
	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
	"github.com/bondmint/bondmint/mintrpc"
)

var (
	testKeysOnce sync.Once
	testSignKey  *rsa.PrivateKey
	testOAEPKey  *rsa.PrivateKey
)

func testSigParams(t *testing.T) *blindsig.Params {
	t.Helper()

	testKeysOnce.Do(func() {
		var err error
		testSignKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		testOAEPKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})

	params := blindsig.NewParams(
		testSignKey.N, testSignKey.E, testOAEPKey,
	)
	params.XEntropyBytes = 16
	params.CipherLen = 2048 / 8
	require.NoError(t, params.Validate())

	return params
}

// redeemHarness runs the redeemer database service over a real socket
// with the bond-redeemer service on top, reached through its typed stub.
type redeemHarness struct {
	params *blindsig.Params
	db     *bonddb.RedeemerDBClient
	client *Client
}

func newRedeemHarness(t *testing.T) *redeemHarness {
	t.Helper()

	params := testSigParams(t)
	rpcRoot := t.TempDir()

	redeemerDB, err := bonddb.OpenRedeemerDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { redeemerDB.Close() })

	dbSrv := mintrpc.NewServer()
	bonddb.RegisterRedeemerDBService(dbSrv, redeemerDB)
	require.NoError(t, dbSrv.Start(
		mintrpc.SocketPath(rpcRoot, bonddb.RedeemerDBService),
	))
	t.Cleanup(func() { dbSrv.Stop() })

	dbConn, err := mintrpc.Dial(
		mintrpc.SocketPath(rpcRoot, bonddb.RedeemerDBService),
	)
	require.NoError(t, err)
	t.Cleanup(func() { dbConn.Close() })

	r := New(params, &chaincfg.MainNetParams,
		bonddb.NewRedeemerDBClient(dbConn))

	redeemSrv := mintrpc.NewServer()
	RegisterService(redeemSrv, r)
	require.NoError(t, redeemSrv.Start(
		mintrpc.SocketPath(rpcRoot, Service),
	))
	t.Cleanup(func() { redeemSrv.Stop() })

	redeemConn, err := mintrpc.Dial(mintrpc.SocketPath(rpcRoot, Service))
	require.NoError(t, err)
	t.Cleanup(func() { redeemConn.Close() })

	return &redeemHarness{
		params: params,
		db:     bonddb.NewRedeemerDBClient(dbConn),
		client: NewClient(redeemConn),
	}
}

// mintBond runs the honest client/signer pair to produce a valid bond.
func (h *redeemHarness) mintBond(t *testing.T) string {
	t.Helper()

	session, err := blindsig.NewSession(h.params)
	require.NoError(t, err)
	defer session.Close()

	protobond, err := blindsig.Sign(testSignKey, session.Token())
	require.NoError(t, err)

	bond, err := session.Unblind(protobond)
	require.NoError(t, err)

	return bond
}

// testAddress returns a fresh valid mainnet address.
func testAddress(t *testing.T) string {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr, err := chainio.PrivKeyAddress(priv, &chaincfg.MainNetParams)
	require.NoError(t, err)

	return addr.EncodeAddress()
}

// TestHappyPathRedemption covers first redemption success and the
// double-spend rejection, with the first payout address keeping the
// claim.
func TestHappyPathRedemption(t *testing.T) {
	h := newRedeemHarness(t)

	bond := h.mintBond(t)
	addr1 := testAddress(t)
	addr2 := testAddress(t)

	require.NoError(t, h.client.Redeem(bond, addr1))

	err := h.client.Redeem(bond, addr2)
	require.ErrorIs(t, err, ErrBondAlreadyUsed)

	rows, err := h.db.UnfulfilledRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, addr1, rows[0].Address)
}

// TestForgeryRejected submits a random residue as a bond: the redeemer
// must reject it cleanly and write nothing.
func TestForgeryRejected(t *testing.T) {
	h := newRedeemHarness(t)

	forged, err := rand.Int(rand.Reader, h.params.N)
	require.NoError(t, err)

	err = h.client.Redeem(blindsig.EncodeBigInt(forged), testAddress(t))
	require.ErrorIs(t, err, ErrInvalidBond)

	rows, err := h.db.UnfulfilledRows()
	require.NoError(t, err)
	require.Empty(t, rows)
}

// TestInvalidAddressRejected asserts the payout address check runs before
// anything else.
func TestInvalidAddressRejected(t *testing.T) {
	h := newRedeemHarness(t)

	err := h.client.Redeem(h.mintBond(t), "not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

// TestInsaneBondRejected covers the cheap hardening checks ahead of the
// crypto.
func TestInsaneBondRejected(t *testing.T) {
	h := newRedeemHarness(t)
	addr := testAddress(t)

	for _, bond := range []string{
		"",
		strings.Repeat("A", blindsig.MaxTokenLen+1),
		"contains spaces and \x00 bytes",
	} {
		err := h.client.Redeem(bond, addr)
		require.ErrorIs(t, err, ErrBondNotSane, "bond %q", bond)
	}
}

// TestDistinctBondsBothRedeem asserts the single-use bit is per bond, not
// global.
func TestDistinctBondsBothRedeem(t *testing.T) {
	h := newRedeemHarness(t)

	addr := testAddress(t)
	require.NoError(t, h.client.Redeem(h.mintBond(t), addr))
	require.NoError(t, h.client.Redeem(h.mintBond(t), addr))

	rows, err := h.db.UnfulfilledRows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
