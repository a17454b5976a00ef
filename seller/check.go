// Package seller implements the sale half of the mint: quoting a per-sale
// deposit address for a token, confirming payment against the chain, and
// issuing the signed protobond. Each operation runs as its own RPC service
// under a distinct principal.
package seller

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/bondmint/bondmint/chainio"
	"github.com/bondmint/bondmint/mintrpc"
)

// BondPrice is the quoted price of one bond, in satoshi.
const BondPrice = 14000

// CheckService is the RPC name of the payment-check service.
const CheckService = "Check"

// Check answers the single question "has this address received at least
// this much?". It deliberately knows nothing about tokens or rows; both
// IssueProtobond and the collector lean on it.
type Check struct {
	chain  chainio.ChainIO
	params *chaincfg.Params
}

// NewCheck builds a Check over the given chain backend.
func NewCheck(chain chainio.ChainIO, params *chaincfg.Params) *Check {
	return &Check{chain: chain, params: params}
}

// Check reports whether addr holds an unspent balance of at least price
// satoshi. No confirmation depth is enforced beyond what the backend
// reports as unspent.
func (c *Check) Check(addr string, price int64) (bool, error) {
	decoded, err := btcutil.DecodeAddress(addr, c.params)
	if err != nil {
		return false, mintrpc.NewError(ErrInvalidAddress)
	}

	balance, err := chainio.Balance(c.chain, decoded)
	if err != nil {
		return false, err
	}

	paid := balance >= btcutil.Amount(price)
	log.Debugf("Address %s holds %v, need %d satoshi: paid=%v",
		addr, balance, price, paid)

	return paid, nil
}

type checkReq struct {
	Addr  string `json:"addr"`
	Price int64  `json:"price"`
}

// RegisterCheckService exposes the check operation on the given RPC
// server.
func RegisterCheckService(srv *mintrpc.Server, c *Check) {
	srv.Register("check", func(kwargs json.RawMessage) (interface{},
		error) {

		var req checkReq
		if err := json.Unmarshal(kwargs, &req); err != nil {
			return nil, err
		}

		return c.Check(req.Addr, req.Price)
	})
}

// CheckClient is the typed stub for the check service.
type CheckClient struct {
	rpc *mintrpc.Client
}

// NewCheckClient wraps an established RPC connection.
func NewCheckClient(rpc *mintrpc.Client) *CheckClient {
	return &CheckClient{rpc: rpc}
}

// Check mirrors Check.Check across the RPC boundary.
func (c *CheckClient) Check(addr string, price int64) (bool, error) {
	var paid bool
	err := c.rpc.Call("check", &checkReq{
		Addr:  addr,
		Price: price,
	}, &paid)
	return paid, err
}
