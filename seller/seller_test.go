package seller

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/bondmint/bondmint/blindsig"
	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
	"github.com/bondmint/bondmint/mintrpc"
	"github.com/bondmint/bondmint/signer"
)

var (
	testKeysOnce sync.Once
	testSignKey  *rsa.PrivateKey
	testOAEPKey  *rsa.PrivateKey
)

// testSigParams returns reduced-size blind-signature parameters shared by
// the whole package test run.
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

// sellHarness runs the complete sale side over real RPC sockets: the
// seller database, sign and check services, and on top of them the quote
// and issue services, each reached through its typed stub.
type sellHarness struct {
	params *blindsig.Params
	chain  *chainio.MockChain
	master *chainio.MasterPrivKey

	db    *bonddb.SellerDBClient
	quote *GenQuoteClient
	issue *IssueProtobondClient
}

func newSellHarness(t *testing.T) *sellHarness {
	t.Helper()

	params := testSigParams(t)
	chain := chainio.NewMockChain()
	rpcRoot := t.TempDir()

	masterPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	master := chainio.NewMasterPrivKey(
		masterPriv, &chaincfg.MainNetParams,
	)

	startServer := func(name string,
		register func(*mintrpc.Server)) *mintrpc.Client {

		srv := mintrpc.NewServer()
		register(srv)
		require.NoError(t, srv.Start(
			mintrpc.SocketPath(rpcRoot, name),
		))
		t.Cleanup(func() { srv.Stop() })

		client, err := mintrpc.Dial(
			mintrpc.SocketPath(rpcRoot, name),
		)
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })

		return client
	}

	sellerDB, err := bonddb.OpenSellerDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sellerDB.Close() })

	dbConn := startServer(bonddb.SellerDBService,
		func(s *mintrpc.Server) {
			bonddb.RegisterSellerDBService(s, sellerDB)
		})
	signConn := startServer(signer.Service, func(s *mintrpc.Server) {
		signer.RegisterService(s, signer.New(testSignKey))
	})
	checkConn := startServer(CheckService, func(s *mintrpc.Server) {
		RegisterCheckService(s, NewCheck(
			chain, &chaincfg.MainNetParams,
		))
	})

	dbClient := bonddb.NewSellerDBClient(dbConn)

	quoteConn := startServer(GenQuoteService, func(s *mintrpc.Server) {
		RegisterGenQuoteService(s, NewGenQuote(
			master.PubKey(),
			bonddb.NewSellerDBClient(dbConn),
		))
	})
	issueConn := startServer(IssueProtobondService,
		func(s *mintrpc.Server) {
			RegisterIssueProtobondService(s, NewIssueProtobond(
				bonddb.NewSellerDBClient(dbConn),
				NewCheckClient(checkConn),
				signer.NewClient(signConn),
			))
		})

	return &sellHarness{
		params: params,
		chain:  chain,
		master: master,
		db:     dbClient,
		quote:  NewGenQuoteClient(quoteConn),
		issue:  NewIssueProtobondClient(issueConn),
	}
}

// TestHappyPathSale walks a full purchase: quote, payment, protobond,
// unblind, verify, and the expected final database state.
func TestHappyPathSale(t *testing.T) {
	h := newSellHarness(t)

	session, err := blindsig.NewSession(h.params)
	require.NoError(t, err)
	defer session.Close()
	token := session.Token()

	addrStr, price, err := h.quote.Quote(token)
	require.NoError(t, err)
	require.EqualValues(t, BondPrice, price)

	// Before payment the issue path reports unpaid.
	_, err = h.issue.Issue(token)
	require.ErrorIs(t, err, ErrPaymentNotReceived)

	addr, err := btcutil.DecodeAddress(addrStr, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NoError(t, h.chain.Fund(addr, BondPrice))

	protobond, err := h.issue.Issue(token)
	require.NoError(t, err)
	require.NotEmpty(t, protobond)

	bond, err := session.Unblind(protobond)
	require.NoError(t, err)
	_, err = blindsig.Verify(h.params, bond)
	require.NoError(t, err)

	row, err := h.db.Get(token)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.EqualValues(t, 1, row.ProtobondSent)
}

// TestUnpaidSale asserts an unpaid token never yields a protobond and
// leaves the row unflagged.
func TestUnpaidSale(t *testing.T) {
	h := newSellHarness(t)

	session, err := blindsig.NewSession(h.params)
	require.NoError(t, err)
	defer session.Close()
	token := session.Token()

	_, _, err = h.quote.Quote(token)
	require.NoError(t, err)

	_, err = h.issue.Issue(token)
	require.ErrorIs(t, err, ErrPaymentNotReceived)

	row, err := h.db.Get(token)
	require.NoError(t, err)
	require.Zero(t, row.ProtobondSent)
}

// TestRepeatQuote asserts quoting is idempotent per token: same address,
// same price, one row.
func TestRepeatQuote(t *testing.T) {
	h := newSellHarness(t)

	token := "repeatable-token"

	addr1, price1, err := h.quote.Quote(token)
	require.NoError(t, err)
	addr2, price2, err := h.quote.Quote(token)
	require.NoError(t, err)

	require.Equal(t, addr1, addr2)
	require.Equal(t, price1, price2)

	row, err := h.db.Get(token)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, addr1, row.Address)

	// The stored index must actually derive the quoted address.
	derived, err := h.master.PubKey().ChildAddress(row.AddressIndex)
	require.NoError(t, err)
	require.Equal(t, addr1, derived.EncodeAddress())
}

// TestQuoteRejectsOversizedToken covers the resource-exhaustion bound.
func TestQuoteRejectsOversizedToken(t *testing.T) {
	h := newSellHarness(t)

	_, _, err := h.quote.Quote(strings.Repeat("A",
		blindsig.MaxTokenLen+1))
	require.ErrorIs(t, err, ErrTokenNotSane)
}

// TestIssueUnknownToken asserts the issue path refuses unquoted tokens.
func TestIssueUnknownToken(t *testing.T) {
	h := newSellHarness(t)

	_, err := h.issue.Issue("never-quoted")
	require.ErrorIs(t, err, ErrNoSuchToken)
}

// TestIssueIsRepeatable asserts a paid token can be re-issued after a
// client crash and yields the bit-identical protobond, with the counter
// climbing.
func TestIssueIsRepeatable(t *testing.T) {
	h := newSellHarness(t)

	session, err := blindsig.NewSession(h.params)
	require.NoError(t, err)
	defer session.Close()
	token := session.Token()

	addrStr, _, err := h.quote.Quote(token)
	require.NoError(t, err)
	addr, err := btcutil.DecodeAddress(addrStr, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NoError(t, h.chain.Fund(addr, BondPrice))

	first, err := h.issue.Issue(token)
	require.NoError(t, err)
	second, err := h.issue.Issue(token)
	require.NoError(t, err)
	require.Equal(t, first, second)

	row, err := h.db.Get(token)
	require.NoError(t, err)
	require.EqualValues(t, 2, row.ProtobondSent)
}
