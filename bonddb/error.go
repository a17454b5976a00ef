package bonddb

import "fmt"

var (
	// ErrDuplicateToken is returned by SellerDB.Put when a sale row with
	// the same token already exists.
	ErrDuplicateToken = fmt.Errorf("token already quoted")

	// ErrSaleNotFound names the case of a token with no sale row.
	// SellerDB.Get reports that case as a nil row with a nil error.
	ErrSaleNotFound = fmt.Errorf("no such token in database")
)
