package seller

import "fmt"

var (
	// ErrTokenNotSane is returned for tokens exceeding the wire length
	// bound, before any database work happens. The token's contents are
	// not otherwise checked.
	ErrTokenNotSane = fmt.Errorf("token not sane")

	// ErrNoSuchToken is returned when a protobond is requested for a
	// token that was never quoted.
	ErrNoSuchToken = fmt.Errorf("no such token in database")

	// ErrPaymentNotReceived is returned while the quoted address has
	// not yet accumulated the quoted price. Callers poll.
	ErrPaymentNotReceived = fmt.Errorf("payment not received")

	// ErrInvalidAddress is returned for strings that do not parse as a
	// Bitcoin address on the active network.
	ErrInvalidAddress = fmt.Errorf("invalid address")
)
