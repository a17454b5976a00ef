// Package bonddb houses the two persistent stores of the mint: the seller
// database of quoted sales and the redeemer database of spent bonds. Each
// store lives in its own SQLite file and is owned by exactly one service
// process; nothing else touches the files.
//
// Bond primary keys and payout addresses are stored hex-encoded, which keeps
// their comparison byte-stable across encodings and collations. Seller
// tokens are stored as received.
package bonddb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	sellerDBName   = "seller_database.db"
	redeemerDBName = "redeemer_database.db"

	dbFilePermission = 0600
)

// sellerSchema mirrors the historical table layout: one row per quoted
// token, with protobond_sent doubling as the ready-for-collection flag.
const sellerSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	token TEXT PRIMARY KEY,
	address_index TEXT,
	address TEXT,
	price INTEGER,
	timestamp REAL,
	protobond_sent INTEGER
);`

// redeemerSchema holds one row per redeemed bond. The primary key on the
// hex-encoded bond is the entire double-spend defense.
const redeemerSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	bond TEXT PRIMARY KEY,
	address TEXT,
	fulfilled INTEGER
);`

// openDB opens (creating if needed) a SQLite database at dir/name and
// applies the given schema. The connection pool is clamped to a single
// connection so that all statements execute serially; the RPC layer above
// already serializes calls, this makes the file itself single-writer too.
func openDB(dir, name, schema string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name)
	if !fileExists(path) {
		f, err := os.OpenFile(
			path, os.O_CREATE|os.O_WRONLY, dbFilePermission,
		)
		if err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to apply schema: %v", err)
	}

	return db, nil
}

func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}
