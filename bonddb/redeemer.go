package bonddb

import (
	"database/sql"
	"encoding/hex"
)

// RedemptionRow is one redeemed bond: the bond string itself, the payout
// address its owner supplied, and whether the dispenser has paid it yet.
type RedemptionRow struct {
	Bond      string
	Address   string
	Fulfilled bool
}

// RedeemerDB is the persistent store of redemptions, keyed by bond. The
// uniqueness of the key is the single-use guarantee: once a bond has a row,
// that row's address is its exclusive payout target forever.
type RedeemerDB struct {
	db *sql.DB
}

// OpenRedeemerDB opens the redeemer database inside dir, creating the file
// and schema on first use.
func OpenRedeemerDB(dir string) (*RedeemerDB, error) {
	db, err := openDB(dir, redeemerDBName, redeemerSchema)
	if err != nil {
		return nil, err
	}

	return &RedeemerDB{db: db}, nil
}

// Close releases the underlying database handle.
func (r *RedeemerDB) Close() error {
	return r.db.Close()
}

// TryToRedeem attempts to reserve bond for payout to address. It returns
// true exactly once per bond: the first caller inserts the row, every
// later caller observes the primary-key collision and gets false. The
// primary-key violation is the sole signal for "already redeemed".
func (r *RedeemerDB) TryToRedeem(bond, address string) (bool, error) {
	_, err := r.db.Exec(
		`INSERT INTO transactions(bond, address, fulfilled)
		 VALUES(?, ?, 0)`,
		hex.EncodeToString([]byte(bond)), address,
	)
	switch {
	case isConstraintErr(err):
		return false, nil
	case err != nil:
		return false, err
	}

	return true, nil
}

// MarkFulfilled sets the fulfilled bit on the row for bond. Idempotent;
// marking an unknown bond is a no-op.
func (r *RedeemerDB) MarkFulfilled(bond string) error {
	_, err := r.db.Exec(
		`UPDATE transactions SET fulfilled = 1 WHERE bond = ?`,
		hex.EncodeToString([]byte(bond)),
	)
	return err
}

// UnfulfilledRows returns every redemption that has not been paid out yet,
// in insertion order.
func (r *RedeemerDB) UnfulfilledRows() ([]*RedemptionRow, error) {
	rows, err := r.db.Query(
		`SELECT bond, address, fulfilled
		 FROM transactions WHERE fulfilled = 0`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var redemptions []*RedemptionRow
	for rows.Next() {
		var (
			bondHex, addr string
			fulfilled     int64
		)
		if err := rows.Scan(&bondHex, &addr, &fulfilled); err != nil {
			return nil, err
		}

		bond, err := hex.DecodeString(bondHex)
		if err != nil {
			return nil, err
		}

		redemptions = append(redemptions, &RedemptionRow{
			Bond:      string(bond),
			Address:   addr,
			Fulfilled: fulfilled != 0,
		})
	}

	return redemptions, rows.Err()
}
