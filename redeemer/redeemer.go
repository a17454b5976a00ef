// Package redeemer implements bond redemption: verifying a submitted bond
// cryptographically and reserving it for a single payout. The reservation
// insert in the redeemer database is the linearization point of the whole
// double-spend defense.
package redeemer

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/bondmint/bondmint/blindsig"
	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/mintrpc"
)

// Service is the RPC name of the bond-redeemer service.
const Service = "BondRedeemer"

// maxBondLen bounds submitted bonds before any expensive work. Encoded
// bonds are the same wire form as tokens, so the token bound applies.
const maxBondLen = blindsig.MaxTokenLen

var (
	// ErrInvalidAddress is returned for payout strings that do not
	// parse as an address on the active network.
	ErrInvalidAddress = fmt.Errorf("invalid address")

	// ErrBondNotSane is returned for submissions failing the cheap
	// length and character checks that guard the crypto path.
	ErrBondNotSane = fmt.Errorf("bond not sane")

	// ErrInvalidBond is returned when cryptographic verification
	// rejects the bond.
	ErrInvalidBond = fmt.Errorf("invalid bond")

	// ErrBondAlreadyUsed is returned when the bond has been redeemed
	// before. The original payout address keeps the claim.
	ErrBondAlreadyUsed = fmt.Errorf("bond already used")
)

// Redeemer verifies and reserves bonds.
type Redeemer struct {
	sigParams *blindsig.Params
	netParams *chaincfg.Params
	db        *bonddb.RedeemerDBClient
}

// New builds a Redeemer over the mint parameters and a redeemer database
// stub.
func New(sigParams *blindsig.Params, netParams *chaincfg.Params,
	db *bonddb.RedeemerDBClient) *Redeemer {

	return &Redeemer{
		sigParams: sigParams,
		netParams: netParams,
		db:        db,
	}
}

// Redeem validates bond and records address as its exclusive payout
// target. Checks run cheapest first; the database insert commits the
// redemption and the dispenser pays later.
func (r *Redeemer) Redeem(bond, address string) error {
	if _, err := btcutil.DecodeAddress(address, r.netParams); err != nil {
		return mintrpc.NewError(ErrInvalidAddress)
	}

	if !bondSane(bond) {
		return mintrpc.NewError(ErrBondNotSane)
	}

	if _, err := blindsig.Verify(r.sigParams, bond); err != nil {
		log.Debugf("Rejecting bond: %v", err)
		return mintrpc.NewError(ErrInvalidBond)
	}

	ok, err := r.db.TryToRedeem(bond, address)
	if err != nil {
		return err
	}
	if !ok {
		return mintrpc.NewError(ErrBondAlreadyUsed)
	}

	log.Infof("Reserved bond for payout to %s", address)

	return nil
}

// bondSane applies the pre-crypto hardening checks: length bound and the
// base64 alphabet. The redemption surface accepts file uploads, so
// anything can arrive here.
func bondSane(bond string) bool {
	if len(bond) == 0 || len(bond) > maxBondLen {
		return false
	}

	for i := 0; i < len(bond); i++ {
		c := bond[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '/' || c == '=':
		default:
			return false
		}
	}

	return true
}

type redeemReq struct {
	Bond    string `json:"bond"`
	Address string `json:"address"`
}

// RegisterService exposes the redeem operation on the given RPC server.
func RegisterService(srv *mintrpc.Server, r *Redeemer) {
	srv.Register("bond_redeem",
		func(kwargs json.RawMessage) (interface{}, error) {
			var req redeemReq
			if err := json.Unmarshal(kwargs, &req); err != nil {
				return nil, err
			}

			if err := r.Redeem(req.Bond, req.Address); err != nil {
				return nil, err
			}
			return true, nil
		})
}

// Client is the typed stub for the bond-redeemer service.
type Client struct {
	rpc *mintrpc.Client
}

// NewClient wraps an established RPC connection.
func NewClient(rpc *mintrpc.Client) *Client {
	return &Client{rpc: rpc}
}

// Redeem mirrors Redeemer.Redeem across the RPC boundary.
func (c *Client) Redeem(bond, address string) error {
	return c.rpc.Call("bond_redeem", &redeemReq{
		Bond:    bond,
		Address: address,
	}, nil)
}
