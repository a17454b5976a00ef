package bonddb

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"math/big"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SaleRow is one quoted sale. AddressIndex is the 128-bit child index the
// per-sale address was derived from; ProtobondSent counts how many times a
// protobond has been issued for the token and doubles as the collection
// flag once positive.
type SaleRow struct {
	Token         string
	AddressIndex  *big.Int
	Address       string
	Price         int64
	Timestamp     time.Time
	ProtobondSent int64
}

// SellerDB is the persistent store of sale rows, keyed by token.
type SellerDB struct {
	db *sql.DB
}

// OpenSellerDB opens the seller database inside dir, creating the file and
// schema on first use.
func OpenSellerDB(dir string) (*SellerDB, error) {
	db, err := openDB(dir, sellerDBName, sellerSchema)
	if err != nil {
		return nil, err
	}

	return &SellerDB{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SellerDB) Close() error {
	return s.db.Close()
}

// Put inserts a fresh sale row for token with protobond_sent = 0 and the
// current time as its timestamp. Inserting a token that already has a row
// fails with ErrDuplicateToken.
func (s *SellerDB) Put(token string, index *big.Int, address string,
	price int64) error {

	_, err := s.db.Exec(
		`INSERT INTO transactions(token, address_index, address,
			price, timestamp, protobond_sent)
		 VALUES(?, ?, ?, ?, ?, 0)`,
		token, index.Text(10), hex.EncodeToString([]byte(address)),
		price, float64(time.Now().UnixNano())/1e9,
	)
	if isConstraintErr(err) {
		return ErrDuplicateToken
	}

	return err
}

// Get fetches the sale row for token. A missing token returns (nil, nil):
// absence is an expected answer on the quote path, not an error.
func (s *SellerDB) Get(token string) (*SaleRow, error) {
	row := s.db.QueryRow(
		`SELECT address_index, address, price, timestamp,
			protobond_sent
		 FROM transactions WHERE token = ?`, token,
	)

	var (
		indexStr, addrHex string
		price, sent       int64
		ts                float64
	)
	err := row.Scan(&indexStr, &addrHex, &price, &ts, &sent)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	}

	return decodeSaleRow(token, indexStr, addrHex, price, ts, sent)
}

// MarkProtobondSent atomically increments the protobond_sent counter of
// the row for token. Marking an unknown token is a no-op that still
// reports success, matching the best-effort semantics of the issue path.
func (s *SellerDB) MarkProtobondSent(token string) error {
	_, err := s.db.Exec(
		`UPDATE transactions
		 SET protobond_sent = protobond_sent + 1
		 WHERE token = ?`, token,
	)
	return err
}

// RowsWithProtobondSent returns every sale row whose protobond has been
// issued at least once. These are the rows whose addresses the collector
// sweeps.
func (s *SellerDB) RowsWithProtobondSent() ([]*SaleRow, error) {
	rows, err := s.db.Query(
		`SELECT token, address_index, address, price, timestamp,
			protobond_sent
		 FROM transactions WHERE protobond_sent > 0`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*SaleRow
	for rows.Next() {
		var (
			token, indexStr, addrHex string
			price, sent              int64
			ts                       float64
		)
		err := rows.Scan(
			&token, &indexStr, &addrHex, &price, &ts, &sent,
		)
		if err != nil {
			return nil, err
		}

		sale, err := decodeSaleRow(
			token, indexStr, addrHex, price, ts, sent,
		)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}

	return sales, rows.Err()
}

// decodeSaleRow converts the stored text forms back into a SaleRow.
func decodeSaleRow(token, indexStr, addrHex string, price int64,
	ts float64, sent int64) (*SaleRow, error) {

	index, ok := new(big.Int).SetString(indexStr, 10)
	if !ok {
		return nil, errors.New("bonddb: corrupt address index")
	}

	addr, err := hex.DecodeString(addrHex)
	if err != nil {
		return nil, errors.New("bonddb: corrupt address")
	}

	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)

	return &SaleRow{
		Token:         token,
		AddressIndex:  index,
		Address:       string(addr),
		Price:         price,
		Timestamp:     time.Unix(sec, nsec),
		ProtobondSent: sent,
	}, nil
}

// isConstraintErr reports whether err is a SQLite constraint violation,
// which on these schemas can only mean a primary-key collision.
func isConstraintErr(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}

	return serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
