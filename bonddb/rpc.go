package bonddb

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/bondmint/bondmint/mintrpc"
)

// The database services expose a fixed, typed method set over mintrpc.
// Every stub below mirrors one local method; the wire kwargs and row
// shapes are private to this file.

// Service names under the RPC root.
const (
	// SellerDBService is the RPC name of the seller database service.
	SellerDBService = "SellerDB"

	// RedeemerDBService is the RPC name of the redeemer database
	// service.
	RedeemerDBService = "RedeemerDB"
)

type saleRowWire struct {
	Token         string  `json:"token"`
	AddressIndex  string  `json:"address_index"`
	Address       string  `json:"address"`
	Price         int64   `json:"price"`
	Timestamp     float64 `json:"timestamp"`
	ProtobondSent int64   `json:"protobond_sent"`
}

func saleRowToWire(row *SaleRow) *saleRowWire {
	return &saleRowWire{
		Token:         row.Token,
		AddressIndex:  row.AddressIndex.Text(10),
		Address:       row.Address,
		Price:         row.Price,
		Timestamp:     float64(row.Timestamp.UnixNano()) / 1e9,
		ProtobondSent: row.ProtobondSent,
	}
}

func saleRowFromWire(w *saleRowWire) *SaleRow {
	index, _ := new(big.Int).SetString(w.AddressIndex, 10)
	sec := int64(w.Timestamp)
	nsec := int64((w.Timestamp - float64(sec)) * 1e9)

	return &SaleRow{
		Token:         w.Token,
		AddressIndex:  index,
		Address:       w.Address,
		Price:         w.Price,
		Timestamp:     time.Unix(sec, nsec),
		ProtobondSent: w.ProtobondSent,
	}
}

type tokenReq struct {
	Token string `json:"token"`
}

type putReq struct {
	Token   string `json:"token"`
	Index   string `json:"index"`
	Address string `json:"address"`
	Price   int64  `json:"price"`
}

type redeemReq struct {
	Bond    string `json:"bond"`
	Address string `json:"address"`
}

type bondReq struct {
	Bond string `json:"bond"`
}

type redemptionRowWire struct {
	Bond      string `json:"bond"`
	Address   string `json:"address"`
	Fulfilled int64  `json:"fulfilled"`
}

// RegisterSellerDBService exposes db's methods on the given RPC server.
func RegisterSellerDBService(s *mintrpc.Server, db *SellerDB) {
	s.Register("get", func(kwargs json.RawMessage) (interface{}, error) {
		var req tokenReq
		if err := json.Unmarshal(kwargs, &req); err != nil {
			return nil, err
		}

		row, err := db.Get(req.Token)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		return saleRowToWire(row), nil
	})

	s.Register("put", func(kwargs json.RawMessage) (interface{}, error) {
		var req putReq
		if err := json.Unmarshal(kwargs, &req); err != nil {
			return nil, err
		}

		index, ok := new(big.Int).SetString(req.Index, 10)
		if !ok {
			return nil, fmt.Errorf("malformed index %q",
				req.Index)
		}

		err := db.Put(req.Token, index, req.Address, req.Price)
		switch {
		case err == ErrDuplicateToken:
			return nil, mintrpc.NewError(err)
		case err != nil:
			return nil, err
		}
		return true, nil
	})

	s.Register("mark_protobond_sent",
		func(kwargs json.RawMessage) (interface{}, error) {
			var req tokenReq
			if err := json.Unmarshal(kwargs, &req); err != nil {
				return nil, err
			}

			if err := db.MarkProtobondSent(req.Token); err != nil {
				return nil, err
			}
			return true, nil
		})

	s.Register("get_rows_with_protobond_sent",
		func(kwargs json.RawMessage) (interface{}, error) {
			rows, err := db.RowsWithProtobondSent()
			if err != nil {
				return nil, err
			}

			wire := make([]*saleRowWire, 0, len(rows))
			for _, row := range rows {
				wire = append(wire, saleRowToWire(row))
			}
			return wire, nil
		})
}

// SellerDBClient is the typed stub for the seller database service.
type SellerDBClient struct {
	rpc *mintrpc.Client
}

// NewSellerDBClient wraps an established RPC connection.
func NewSellerDBClient(rpc *mintrpc.Client) *SellerDBClient {
	return &SellerDBClient{rpc: rpc}
}

// Get mirrors SellerDB.Get across the RPC boundary.
func (c *SellerDBClient) Get(token string) (*SaleRow, error) {
	var wire *saleRowWire
	err := c.rpc.Call("get", &tokenReq{Token: token}, &wire)
	if err != nil {
		return nil, err
	}
	if wire == nil {
		return nil, nil
	}
	return saleRowFromWire(wire), nil
}

// Put mirrors SellerDB.Put across the RPC boundary.
func (c *SellerDBClient) Put(token string, index *big.Int, address string,
	price int64) error {

	return c.rpc.Call("put", &putReq{
		Token:   token,
		Index:   index.Text(10),
		Address: address,
		Price:   price,
	}, nil)
}

// MarkProtobondSent mirrors SellerDB.MarkProtobondSent across the RPC
// boundary.
func (c *SellerDBClient) MarkProtobondSent(token string) error {
	return c.rpc.Call(
		"mark_protobond_sent", &tokenReq{Token: token}, nil,
	)
}

// RowsWithProtobondSent mirrors SellerDB.RowsWithProtobondSent across the
// RPC boundary.
func (c *SellerDBClient) RowsWithProtobondSent() ([]*SaleRow, error) {
	var wire []*saleRowWire
	err := c.rpc.Call("get_rows_with_protobond_sent",
		struct{}{}, &wire)
	if err != nil {
		return nil, err
	}

	rows := make([]*SaleRow, 0, len(wire))
	for _, w := range wire {
		rows = append(rows, saleRowFromWire(w))
	}
	return rows, nil
}

// RegisterRedeemerDBService exposes db's methods on the given RPC server.
func RegisterRedeemerDBService(s *mintrpc.Server, db *RedeemerDB) {
	s.Register("try_to_redeem",
		func(kwargs json.RawMessage) (interface{}, error) {
			var req redeemReq
			if err := json.Unmarshal(kwargs, &req); err != nil {
				return nil, err
			}

			return db.TryToRedeem(req.Bond, req.Address)
		})

	s.Register("mark_fulfilled",
		func(kwargs json.RawMessage) (interface{}, error) {
			var req bondReq
			if err := json.Unmarshal(kwargs, &req); err != nil {
				return nil, err
			}

			if err := db.MarkFulfilled(req.Bond); err != nil {
				return nil, err
			}
			return true, nil
		})

	s.Register("get_unfulfilled_rows",
		func(kwargs json.RawMessage) (interface{}, error) {
			rows, err := db.UnfulfilledRows()
			if err != nil {
				return nil, err
			}

			wire := make([]*redemptionRowWire, 0, len(rows))
			for _, row := range rows {
				wire = append(wire, &redemptionRowWire{
					Bond:    row.Bond,
					Address: row.Address,
				})
			}
			return wire, nil
		})
}

// RedeemerDBClient is the typed stub for the redeemer database service.
type RedeemerDBClient struct {
	rpc *mintrpc.Client
}

// NewRedeemerDBClient wraps an established RPC connection.
func NewRedeemerDBClient(rpc *mintrpc.Client) *RedeemerDBClient {
	return &RedeemerDBClient{rpc: rpc}
}

// TryToRedeem mirrors RedeemerDB.TryToRedeem across the RPC boundary.
func (c *RedeemerDBClient) TryToRedeem(bond, address string) (bool, error) {
	var ok bool
	err := c.rpc.Call("try_to_redeem", &redeemReq{
		Bond:    bond,
		Address: address,
	}, &ok)
	return ok, err
}

// MarkFulfilled mirrors RedeemerDB.MarkFulfilled across the RPC boundary.
func (c *RedeemerDBClient) MarkFulfilled(bond string) error {
	return c.rpc.Call("mark_fulfilled", &bondReq{Bond: bond}, nil)
}

// UnfulfilledRows mirrors RedeemerDB.UnfulfilledRows across the RPC
// boundary.
func (c *RedeemerDBClient) UnfulfilledRows() ([]*RedemptionRow, error) {
	var wire []*redemptionRowWire
	err := c.rpc.Call("get_unfulfilled_rows", struct{}{}, &wire)
	if err != nil {
		return nil, err
	}

	rows := make([]*RedemptionRow, 0, len(wire))
	for _, w := range wire {
		rows = append(rows, &RedemptionRow{
			Bond:    w.Bond,
			Address: w.Address,
		})
	}
	return rows, nil
}
