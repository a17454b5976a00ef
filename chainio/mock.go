package chainio

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// MockChain is an in-memory ChainIO used throughout the test suites: a
// funded-output ledger per address plus a record of every published
// transaction.
type MockChain struct {
	mtx sync.Mutex

	utxos     map[string][]*Utxo
	published []*wire.MsgTx

	// PublishErr, when set, is returned by PublishTransaction to
	// simulate a broadcast outage.
	PublishErr error
}

// NewMockChain returns an empty mock chain.
func NewMockChain() *MockChain {
	return &MockChain{utxos: make(map[string][]*Utxo)}
}

// Fund credits addr with one fresh output of the given value.
func (m *MockChain) Fund(addr btcutil.Address, value btcutil.Amount) error {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return err
	}

	var txHash chainhash.Hash
	if _, err := rand.Read(txHash[:]); err != nil {
		return err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	key := addr.EncodeAddress()
	m.utxos[key] = append(m.utxos[key], &Utxo{
		TxHash:   txHash,
		Value:    value,
		PkScript: pkScript,
	})

	return nil
}

// UnspentOutputs implements ChainIO.
func (m *MockChain) UnspentOutputs(addr btcutil.Address) ([]*Utxo, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.utxos[addr.EncodeAddress()], nil
}

// PublishTransaction implements ChainIO.
func (m *MockChain) PublishTransaction(tx *wire.MsgTx) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}

	m.published = append(m.published, tx)
	return nil
}

// Published returns a snapshot of the transactions broadcast so far.
func (m *MockChain) Published() []*wire.MsgTx {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]*wire.MsgTx(nil), m.published...)
}

// PublishedCount returns how many transactions have been broadcast.
func (m *MockChain) PublishedCount() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return len(m.published)
}

// assert MockChain satisfies the interface it mocks.
var _ ChainIO = (*MockChain)(nil)

// String makes debugging output readable.
func (m *MockChain) String() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return fmt.Sprintf("mockChain(%d addrs, %d published)",
		len(m.utxos), len(m.published))
}
