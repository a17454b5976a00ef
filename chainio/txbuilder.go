package chainio

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// TransactionFee is the flat fee attached to every sweep and payout
// transaction, in satoshi.
const TransactionFee = btcutil.Amount(20000)

// dustThreshold is the smallest output the builders will emit. Anything
// below this would be unrelayable anyway and indicates a mis-sized fee.
const dustThreshold = btcutil.Amount(546)

// SweepTx builds and signs a transaction spending every given output of a
// single P2PKH address to destAddr, paying exactly fee. The entire balance
// minus the fee moves; no change output exists by construction.
func SweepTx(utxos []*Utxo, priv *btcec.PrivateKey, destAddr btcutil.Address,
	fee btcutil.Amount) (*wire.MsgTx, error) {

	if len(utxos) == 0 {
		return nil, fmt.Errorf("chainio: nothing to sweep")
	}

	var total btcutil.Amount
	for _, utxo := range utxos {
		total += utxo.Value
	}
	if total <= fee {
		return nil, fmt.Errorf("chainio: balance %v cannot cover "+
			"fee %v", total, fee)
	}

	return buildAndSign(utxos, priv, []*wire.TxOut{
		payToAddrOut(destAddr, total-fee),
	})
}

// SendTx builds and signs a payment of value to destAddr funded from the
// given outputs of a single P2PKH address, returning any surplus above
// value+fee to changeAddr. Change below the dust threshold is absorbed
// into the fee.
func SendTx(utxos []*Utxo, priv *btcec.PrivateKey, destAddr btcutil.Address,
	value, fee btcutil.Amount,
	changeAddr btcutil.Address) (*wire.MsgTx, error) {

	if value < dustThreshold {
		return nil, fmt.Errorf("chainio: output %v below dust", value)
	}

	// Select inputs oldest-first until value+fee is covered.
	var (
		selected []*Utxo
		total    btcutil.Amount
	)
	for _, utxo := range utxos {
		selected = append(selected, utxo)
		total += utxo.Value
		if total >= value+fee {
			break
		}
	}
	if total < value+fee {
		return nil, fmt.Errorf("chainio: insufficient funds: have "+
			"%v, need %v", total, value+fee)
	}

	outs := []*wire.TxOut{payToAddrOut(destAddr, value)}
	if change := total - value - fee; change >= dustThreshold {
		outs = append(outs, payToAddrOut(changeAddr, change))
	}

	return buildAndSign(selected, priv, outs)
}

// buildAndSign assembles the unsigned transaction, then signs every input
// against its previous output script. All inputs must belong to the
// uncompressed P2PKH address of priv.
func buildAndSign(utxos []*Utxo, priv *btcec.PrivateKey,
	outs []*wire.TxOut) (*wire.MsgTx, error) {

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, utxo := range utxos {
		outPoint := wire.NewOutPoint(&utxo.TxHash, utxo.Index)
		tx.AddTxIn(wire.NewTxIn(outPoint, nil, nil))
	}
	for _, out := range outs {
		tx.AddTxOut(out)
	}

	for i, utxo := range utxos {
		sigScript, err := txscript.SignatureScript(
			tx, i, utxo.PkScript, txscript.SigHashAll, priv,
			false,
		)
		if err != nil {
			return nil, fmt.Errorf("chainio: unable to sign "+
				"input %d: %v", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	return tx, nil
}

// payToAddrOut builds a standard output paying value to addr.
func payToAddrOut(addr btcutil.Address, value btcutil.Amount) *wire.TxOut {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		// Only reachable with an address type the builders never
		// produce.
		panic(fmt.Sprintf("unable to build output script: %v", err))
	}

	return wire.NewTxOut(int64(value), pkScript)
}
