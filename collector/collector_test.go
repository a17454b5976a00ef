package collector

import (
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"

	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
	"github.com/bondmint/bondmint/mintrpc"
	"github.com/bondmint/bondmint/seller"
)

// collectHarness wires a collector to real SellerDB and Check services on
// temp sockets, a mock chain, and a force ticker.
type collectHarness struct {
	chain  *chainio.MockChain
	master *chainio.MasterPrivKey
	mixin  btcutil.Address
	db     *bonddb.SellerDBClient
	force  *ticker.Force
}

func newCollectHarness(t *testing.T) *collectHarness {
	t.Helper()

	rpcRoot := t.TempDir()
	chain := chainio.NewMockChain()

	masterPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	master := chainio.NewMasterPrivKey(
		masterPriv, &chaincfg.MainNetParams,
	)

	mixinPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	mixin, err := chainio.PrivKeyAddress(
		mixinPriv, &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	sellerDB, err := bonddb.OpenSellerDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sellerDB.Close() })

	dbSrv := mintrpc.NewServer()
	bonddb.RegisterSellerDBService(dbSrv, sellerDB)
	require.NoError(t, dbSrv.Start(
		mintrpc.SocketPath(rpcRoot, bonddb.SellerDBService),
	))
	t.Cleanup(func() { dbSrv.Stop() })

	checkSrv := mintrpc.NewServer()
	seller.RegisterCheckService(checkSrv, seller.NewCheck(
		chain, &chaincfg.MainNetParams,
	))
	require.NoError(t, checkSrv.Start(
		mintrpc.SocketPath(rpcRoot, seller.CheckService),
	))
	t.Cleanup(func() { checkSrv.Stop() })

	dial := func(name string) *mintrpc.Client {
		conn, err := mintrpc.Dial(mintrpc.SocketPath(rpcRoot, name))
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	force := ticker.NewForce(time.Hour)

	c := New(&Config{
		MasterKey:    master,
		MixinAddress: mixin,
		Chain:        chain,
		DB: bonddb.NewSellerDBClient(
			dial(bonddb.SellerDBService),
		),
		Check:  seller.NewCheckClient(dial(seller.CheckService)),
		Ticker: force,
	})
	require.NoError(t, c.Start())
	t.Cleanup(func() { c.Stop() })

	return &collectHarness{
		chain:  chain,
		master: master,
		mixin:  mixin,
		db: bonddb.NewSellerDBClient(
			dial(bonddb.SellerDBService),
		),
		force: force,
	}
}

// addSale inserts one sale row at a random index and returns the derived
// address.
func (h *collectHarness) addSale(t *testing.T, token string,
	flag bool) btcutil.Address {

	t.Helper()

	index, err := rand.Int(
		rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128),
	)
	require.NoError(t, err)

	addr, err := h.master.PubKey().ChildAddress(index)
	require.NoError(t, err)

	err = h.db.Put(token, index, addr.EncodeAddress(), seller.BondPrice)
	require.NoError(t, err)

	if flag {
		require.NoError(t, h.db.MarkProtobondSent(token))
	}

	return addr
}

// tick forces one sweep pass and waits for the condition to hold.
func (h *collectHarness) tick(t *testing.T, cond func() bool) {
	t.Helper()

	h.force.Force <- time.Now()

	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
}

// TestCollectSweepsPaidRows covers the happy sweep: a flagged, funded row
// is swept in full, minus the fee, into the mixing address.
func TestCollectSweepsPaidRows(t *testing.T) {
	h := newCollectHarness(t)

	addr := h.addSale(t, "token-1", true)
	require.NoError(t, h.chain.Fund(addr, seller.BondPrice))
	require.NoError(t, h.chain.Fund(addr, 30000))

	h.tick(t, func() bool { return h.chain.PublishedCount() == 1 })

	mixinScript, err := txscript.PayToAddrScript(h.mixin)
	require.NoError(t, err)

	tx := h.chain.Published()[0]
	require.Len(t, tx.TxIn, 2)
	require.Len(t, tx.TxOut, 1)
	require.EqualValues(t,
		seller.BondPrice+30000-int64(chainio.TransactionFee),
		tx.TxOut[0].Value)
	require.Equal(t, mixinScript, tx.TxOut[0].PkScript)
}

// TestCollectSkipsUnflaggedRows asserts rows whose protobond never went
// out are left alone even when funded.
func TestCollectSkipsUnflaggedRows(t *testing.T) {
	h := newCollectHarness(t)

	addr := h.addSale(t, "token-1", false)
	require.NoError(t, h.chain.Fund(addr, seller.BondPrice))

	h.force.Force <- time.Now()
	require.Never(t, func() bool {
		return h.chain.PublishedCount() > 0
	}, 500*time.Millisecond, 50*time.Millisecond)
}

// TestCollectSkipsUnpaidRows asserts flagged but unfunded rows are not
// swept.
func TestCollectSkipsUnpaidRows(t *testing.T) {
	h := newCollectHarness(t)

	h.addSale(t, "token-1", true)

	h.force.Force <- time.Now()
	require.Never(t, func() bool {
		return h.chain.PublishedCount() > 0
	}, 500*time.Millisecond, 50*time.Millisecond)
}

// TestCollectRefusesDerivationMismatch pins the integrity gate: a row
// whose stored address does not match its index must never be signed
// for.
func TestCollectRefusesDerivationMismatch(t *testing.T) {
	h := newCollectHarness(t)

	// Store a row whose address belongs to a different index.
	index, err := rand.Int(
		rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128),
	)
	require.NoError(t, err)
	wrongAddr, err := h.master.PubKey().ChildAddress(big.NewInt(42))
	require.NoError(t, err)

	err = h.db.Put("token-1", index, wrongAddr.EncodeAddress(),
		seller.BondPrice)
	require.NoError(t, err)
	require.NoError(t, h.db.MarkProtobondSent("token-1"))
	require.NoError(t, h.chain.Fund(wrongAddr, seller.BondPrice))

	h.force.Force <- time.Now()
	require.Never(t, func() bool {
		return h.chain.PublishedCount() > 0
	}, 500*time.Millisecond, 50*time.Millisecond)
}
