package seller

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/bondmint/bondmint/blindsig"
	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
	"github.com/bondmint/bondmint/mintrpc"
)

// GenQuoteService is the RPC name of the quote service.
const GenQuoteService = "GenQuote"

// addressIndexBits is the size of the random deterministic-wallet child
// index. Random rather than sequential indices keep per-sale addresses
// unlinkable, and at 128 bits collisions are not a concern. The index is
// also the blast shield of the wallet scheme: a leaked child private key
// plus (mpk, index) recovers the master key, so indices are treated as
// sensitive alongside the rows they live in.
const addressIndexBits = 128

// GenQuote hands out (address, price) quotes keyed by token, backed by a
// row in the seller database. Quoting is idempotent per token.
type GenQuote struct {
	mpk *chainio.MasterPubKey
	db  *bonddb.SellerDBClient
}

// NewGenQuote builds the quote service over the master public key and a
// seller database stub.
func NewGenQuote(mpk *chainio.MasterPubKey,
	db *bonddb.SellerDBClient) *GenQuote {

	return &GenQuote{mpk: mpk, db: db}
}

// Quote returns the deposit address and price for token, creating the sale
// row on first sight. Requoting an existing token returns the original
// quote after re-deriving its address from the stored index; a mismatch
// there means the database and wallet disagree and is fatal for the
// request.
func (g *GenQuote) Quote(token string) (string, int64, error) {
	if len(token) > blindsig.MaxTokenLen {
		return "", 0, mintrpc.NewError(ErrTokenNotSane)
	}

	row, err := g.db.Get(token)
	if err != nil {
		return "", 0, err
	}
	if row != nil {
		derived, err := g.mpk.ChildAddress(row.AddressIndex)
		if err != nil {
			return "", 0, err
		}
		if derived.EncodeAddress() != row.Address {
			return "", 0, fmt.Errorf("address %s does not match "+
				"derivation at stored index", row.Address)
		}

		return row.Address, row.Price, nil
	}

	index, err := rand.Int(
		rand.Reader, new(big.Int).Lsh(big.NewInt(1), addressIndexBits),
	)
	if err != nil {
		return "", 0, err
	}

	addr, err := g.mpk.ChildAddress(index)
	if err != nil {
		return "", 0, err
	}

	err = g.db.Put(token, index, addr.EncodeAddress(), BondPrice)
	switch {
	case errors.Is(err, bonddb.ErrDuplicateToken):
		// Two concurrent quotes raced on the same token. The row
		// that won is the quote.
		row, err := g.db.Get(token)
		if err != nil {
			return "", 0, err
		}
		if row == nil {
			return "", 0, fmt.Errorf("token vanished after "+
				"duplicate insert")
		}
		return row.Address, row.Price, nil

	case err != nil:
		return "", 0, err
	}

	log.Infof("Quoted %d satoshi at %s for new token", BondPrice,
		addr.EncodeAddress())

	return addr.EncodeAddress(), BondPrice, nil
}

type quoteResp struct {
	Addr  string `json:"addr"`
	Price int64  `json:"price"`
}

// RegisterGenQuoteService exposes the quote operation on the given RPC
// server.
func RegisterGenQuoteService(srv *mintrpc.Server, g *GenQuote) {
	srv.Register("gen_quote",
		func(kwargs json.RawMessage) (interface{}, error) {
			var req struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(kwargs, &req); err != nil {
				return nil, err
			}

			addr, price, err := g.Quote(req.Token)
			if err != nil {
				return nil, err
			}

			return &quoteResp{Addr: addr, Price: price}, nil
		})
}

// GenQuoteClient is the typed stub for the quote service.
type GenQuoteClient struct {
	rpc *mintrpc.Client
}

// NewGenQuoteClient wraps an established RPC connection.
func NewGenQuoteClient(rpc *mintrpc.Client) *GenQuoteClient {
	return &GenQuoteClient{rpc: rpc}
}

// Quote mirrors GenQuote.Quote across the RPC boundary.
func (c *GenQuoteClient) Quote(token string) (string, int64, error) {
	var resp quoteResp
	err := c.rpc.Call("gen_quote", &struct {
		Token string `json:"token"`
	}{Token: token}, &resp)
	if err != nil {
		return "", 0, err
	}

	return resp.Addr, resp.Price, nil
}
