// Package chainio abstracts the mint's view of the Bitcoin network: it
// derives per-sale addresses from a deterministic master key, queries
// unspent outputs through a block-explorer backend, and builds, signs and
// broadcasts the sweep and payout transactions.
package chainio

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Utxo is one unspent output funding an address we control or watch.
type Utxo struct {
	// TxHash is the hash of the funding transaction.
	TxHash chainhash.Hash

	// Index is the output index within the funding transaction.
	Index uint32

	// Value is the output value.
	Value btcutil.Amount

	// PkScript is the output script, needed again at signing time.
	PkScript []byte
}

// ChainIO is the minimal chain backend the mint consumes. The production
// implementation talks to a block explorer; tests substitute an in-memory
// fake. Confirmation policy is deliberately out of scope: an output listed
// here counts toward the balance.
type ChainIO interface {
	// UnspentOutputs returns the unspent outputs paying to addr.
	UnspentOutputs(addr btcutil.Address) ([]*Utxo, error)

	// PublishTransaction broadcasts a signed transaction to the
	// network.
	PublishTransaction(tx *wire.MsgTx) error
}

// Balance sums the unspent outputs of addr as reported by the backend.
func Balance(chain ChainIO, addr btcutil.Address) (btcutil.Amount, error) {
	utxos, err := chain.UnspentOutputs(addr)
	if err != nil {
		return 0, err
	}

	var total btcutil.Amount
	for _, utxo := range utxos {
		total += utxo.Value
	}

	return total, nil
}
