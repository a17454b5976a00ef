package bonddb

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestSellerDB(t *testing.T) *SellerDB {
	t.Helper()

	db, err := OpenSellerDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func openTestRedeemerDB(t *testing.T) *RedeemerDB {
	t.Helper()

	db, err := OpenRedeemerDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

// TestSellerPutGet asserts a stored sale row reads back intact with a
// zero protobond counter.
func TestSellerPutGet(t *testing.T) {
	db := openTestSellerDB(t)

	index, ok := new(big.Int).SetString(
		"240089162957149229354731399372028648693", 10,
	)
	require.True(t, ok)

	err := db.Put("token-1", index, "1BondAddrXXXXXXXXXXXXXXXXXXXXQuote",
		14000)
	require.NoError(t, err)

	row, err := db.Get("token-1")
	require.NoError(t, err)
	require.NotNil(t, row)

	require.Equal(t, "token-1", row.Token)
	require.Zero(t, index.Cmp(row.AddressIndex))
	require.Equal(t, "1BondAddrXXXXXXXXXXXXXXXXXXXXQuote", row.Address)
	require.EqualValues(t, 14000, row.Price)
	require.Zero(t, row.ProtobondSent)
	require.False(t, row.Timestamp.IsZero())
}

// TestSellerGetMissing asserts a missing token reads back as absent, not
// as an error.
func TestSellerGetMissing(t *testing.T) {
	db := openTestSellerDB(t)

	row, err := db.Get("never-quoted")
	require.NoError(t, err)
	require.Nil(t, row)
}

// TestSellerDuplicateToken asserts the token primary key holds.
func TestSellerDuplicateToken(t *testing.T) {
	db := openTestSellerDB(t)

	index := big.NewInt(7)
	require.NoError(t, db.Put("token-1", index, "addr-a", 14000))

	err := db.Put("token-1", big.NewInt(8), "addr-b", 14000)
	require.ErrorIs(t, err, ErrDuplicateToken)

	// The original row survives the collision.
	row, err := db.Get("token-1")
	require.NoError(t, err)
	require.Equal(t, "addr-a", row.Address)
}

// TestSellerMarkProtobondSent asserts the counter only ever climbs, and
// that flagged rows become visible to the collector query.
func TestSellerMarkProtobondSent(t *testing.T) {
	db := openTestSellerDB(t)

	require.NoError(t, db.Put("token-1", big.NewInt(1), "addr-a", 14000))
	require.NoError(t, db.Put("token-2", big.NewInt(2), "addr-b", 14000))

	rows, err := db.RowsWithProtobondSent()
	require.NoError(t, err)
	require.Empty(t, rows)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.MarkProtobondSent("token-1"))
	}

	row, err := db.Get("token-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, row.ProtobondSent)

	rows, err = db.RowsWithProtobondSent()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "token-1", rows[0].Token)
}

// TestRedeemerTryToRedeem is the double-spend property: the first insert
// wins, every retry loses, and the stored address never changes.
func TestRedeemerTryToRedeem(t *testing.T) {
	db := openTestRedeemerDB(t)

	ok, err := db.TryToRedeem("bond-1", "addr-first")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.TryToRedeem("bond-1", "addr-second")
	require.NoError(t, err)
	require.False(t, ok)

	rows, err := db.UnfulfilledRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "bond-1", rows[0].Bond)
	require.Equal(t, "addr-first", rows[0].Address)
}

// TestRedeemerMarkFulfilled asserts fulfillment is sticky and idempotent.
func TestRedeemerMarkFulfilled(t *testing.T) {
	db := openTestRedeemerDB(t)

	ok, err := db.TryToRedeem("bond-1", "addr-a")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.TryToRedeem("bond-2", "addr-b")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.MarkFulfilled("bond-1"))
	require.NoError(t, db.MarkFulfilled("bond-1"))

	rows, err := db.UnfulfilledRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "bond-2", rows[0].Bond)
}

// TestRedeemerBinaryBondKeys asserts arbitrary byte strings survive as
// primary keys, which is what the hex encoding in the schema buys.
func TestRedeemerBinaryBondKeys(t *testing.T) {
	db := openTestRedeemerDB(t)

	bond := string([]byte{0x00, 0xff, 0x27, 0x22, 0x0a, 0x00})
	ok, err := db.TryToRedeem(bond, "addr-a")
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := db.UnfulfilledRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, bond, rows[0].Bond)
}

// TestSellerPersistence asserts state, in particular the protobond flag,
// survives a close and reopen.
func TestSellerPersistence(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenSellerDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Put("token-1", big.NewInt(1), "addr-a", 14000))
	require.NoError(t, db.MarkProtobondSent("token-1"))
	require.NoError(t, db.Close())

	db, err = OpenSellerDB(dir)
	require.NoError(t, err)
	defer db.Close()

	row, err := db.Get("token-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, row.ProtobondSent)
}
