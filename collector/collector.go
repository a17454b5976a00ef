// Package collector sweeps paid-for per-sale addresses into the mixing
// wallet. It is the only principal holding the wallet master private key,
// and it runs as a periodic loop rather than a request handler: nothing
// external can ask it to sign.
package collector

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
	"github.com/bondmint/bondmint/seller"
)

// Config packages the collaborators of the collector.
type Config struct {
	// MasterKey is the private root of the deterministic wallet.
	MasterKey *chainio.MasterPrivKey

	// MixinAddress receives every sweep.
	MixinAddress btcutil.Address

	// Chain is the chain backend used for UTXO lookup and broadcast.
	Chain chainio.ChainIO

	// DB reads sale rows flagged by IssueProtobond.
	DB *bonddb.SellerDBClient

	// Check re-confirms payment before any key derivation happens.
	Check *seller.CheckClient

	// Ticker paces the sweep loop.
	Ticker ticker.Ticker
}

// Collector is the sweep loop.
type Collector struct {
	started  int32 // atomic
	shutdown int32 // atomic

	cfg *Config

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a stopped collector.
func New(cfg *Config) *Collector {
	return &Collector{
		cfg:  cfg,
		quit: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (c *Collector) Start() error {
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return nil
	}

	log.Infof("Collector sweeping into %s",
		c.cfg.MixinAddress.EncodeAddress())

	c.wg.Add(1)
	go c.sweepLoop()

	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (c *Collector) Stop() error {
	if !atomic.CompareAndSwapInt32(&c.shutdown, 0, 1) {
		return nil
	}

	close(c.quit)
	c.wg.Wait()

	return nil
}

// sweepLoop runs collect on every tick until shutdown.
func (c *Collector) sweepLoop() {
	defer c.wg.Done()

	c.cfg.Ticker.Resume()
	defer c.cfg.Ticker.Stop()

	for {
		select {
		case <-c.cfg.Ticker.Ticks():
			if err := c.collect(); err != nil {
				log.Errorf("Sweep pass failed: %v", err)
			}

		case <-c.quit:
			return
		}
	}
}

// collect walks every sale row whose protobond went out and sweeps its
// address balance, minus the transaction fee, into the mixing wallet.
func (c *Collector) collect() error {
	rows, err := c.cfg.DB.RowsWithProtobondSent()
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := c.sweepRow(row); err != nil {
			log.Errorf("Unable to sweep %s: %v", row.Address, err)
		}

		select {
		case <-c.quit:
			return nil
		default:
		}
	}

	return nil
}

// sweepRow re-derives the row's address, re-confirms payment, and moves
// the whole balance. The derivation check runs before any signing: a row
// whose stored address disagrees with the wallet must never be signed for.
func (c *Collector) sweepRow(row *bonddb.SaleRow) error {
	derived, err := c.cfg.MasterKey.ChildAddress(row.AddressIndex)
	if err != nil {
		return err
	}
	if derived.EncodeAddress() != row.Address {
		log.Criticalf("Integrity failure: row address %s does not "+
			"match derivation at stored index", row.Address)
		return fmt.Errorf("address derivation mismatch")
	}

	paid, err := c.cfg.Check.Check(row.Address, seller.BondPrice)
	if err != nil {
		return err
	}
	if !paid {
		return nil
	}

	utxos, err := c.cfg.Chain.UnspentOutputs(derived)
	if err != nil {
		return err
	}
	if len(utxos) == 0 {
		// Already swept on an earlier pass.
		return nil
	}

	childKey, err := c.cfg.MasterKey.ChildPrivKey(row.AddressIndex)
	if err != nil {
		return err
	}

	tx, err := chainio.SweepTx(
		utxos, childKey, c.cfg.MixinAddress, chainio.TransactionFee,
	)
	if err != nil {
		return err
	}

	if err := c.cfg.Chain.PublishTransaction(tx); err != nil {
		return err
	}

	log.Infof("Swept %s into mixing wallet", row.Address)

	return nil
}
