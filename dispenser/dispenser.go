// Package dispenser pays out redeemed bonds from the dispenser wallet. It
// owns the dispenser private key and runs as a periodic loop over the
// unfulfilled rows of the redeemer database.
//
// A row is marked fulfilled before its payment broadcasts. A crash in the
// window between mark and broadcast therefore loses that payout; the
// opposite order would risk paying the same bond twice on restart, which a
// single-use system must never do. Operators reconcile missed payouts by
// hand from the logs.
package dispenser

import (
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
)

// BondValue is the payout for one redeemed bond, in satoshi.
const BondValue = 10000

// Config packages the collaborators of the dispenser.
type Config struct {
	// Key is the dispenser wallet private key.
	Key *btcec.PrivateKey

	// Chain is the chain backend used for UTXO lookup and broadcast.
	Chain chainio.ChainIO

	// DB reads and marks redemption rows.
	DB *bonddb.RedeemerDBClient

	// Ticker paces the payout loop.
	Ticker ticker.Ticker

	// NetParams identifies the active network for address handling.
	NetParams *chaincfg.Params
}

// Dispenser is the payout loop.
type Dispenser struct {
	started  int32 // atomic
	shutdown int32 // atomic

	cfg *Config

	// addr is the dispenser wallet's own address, funding every payout
	// and receiving every change output.
	addr btcutil.Address

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a stopped dispenser.
func New(cfg *Config) (*Dispenser, error) {
	addr, err := chainio.PrivKeyAddress(cfg.Key, cfg.NetParams)
	if err != nil {
		return nil, err
	}

	return &Dispenser{
		cfg:  cfg,
		addr: addr,
		quit: make(chan struct{}),
	}, nil
}

// Start launches the payout loop.
func (d *Dispenser) Start() error {
	if !atomic.CompareAndSwapInt32(&d.started, 0, 1) {
		return nil
	}

	log.Infof("Dispenser paying %d satoshi per bond from %s", BondValue,
		d.addr.EncodeAddress())

	d.wg.Add(1)
	go d.payoutLoop()

	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (d *Dispenser) Stop() error {
	if !atomic.CompareAndSwapInt32(&d.shutdown, 0, 1) {
		return nil
	}

	close(d.quit)
	d.wg.Wait()

	return nil
}

// payoutLoop runs dispense on every tick until shutdown.
func (d *Dispenser) payoutLoop() {
	defer d.wg.Done()

	d.cfg.Ticker.Resume()
	defer d.cfg.Ticker.Stop()

	for {
		select {
		case <-d.cfg.Ticker.Ticks():
			if err := d.dispense(); err != nil {
				log.Errorf("Payout pass failed: %v", err)
			}

		case <-d.quit:
			return
		}
	}
}

// dispense pays every unfulfilled redemption row, marking each row before
// its broadcast per the never-double-pay rule above.
func (d *Dispenser) dispense() error {
	rows, err := d.cfg.DB.UnfulfilledRows()
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := d.payRow(row); err != nil {
			log.Errorf("Unable to pay %s: %v", row.Address, err)
		}

		select {
		case <-d.quit:
			return nil
		default:
		}
	}

	return nil
}

// payRow marks one row fulfilled and sends its payout.
func (d *Dispenser) payRow(row *bonddb.RedemptionRow) error {
	destAddr, err := btcutil.DecodeAddress(row.Address, d.cfg.NetParams)
	if err != nil {
		return err
	}

	if err := d.cfg.DB.MarkFulfilled(row.Bond); err != nil {
		return err
	}

	utxos, err := d.cfg.Chain.UnspentOutputs(d.addr)
	if err != nil {
		return err
	}

	tx, err := chainio.SendTx(
		utxos, d.cfg.Key, destAddr, BondValue,
		chainio.TransactionFee, d.addr,
	)
	if err != nil {
		return err
	}

	if err := d.cfg.Chain.PublishTransaction(tx); err != nil {
		return err
	}

	log.Infof("Dispensed %d satoshi to %s", BondValue, row.Address)

	return nil
}
