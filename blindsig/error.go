package blindsig

import "fmt"

var (
	// ErrBadEncoding is returned when a wire string does not decode to
	// an integer, or when a bond decodes to a value not below N.
	ErrBadEncoding = fmt.Errorf("not a valid bond: value encoding")

	// ErrBadOAEPMod is returned during token generation when the padded
	// message falls outside the signing modulus. The caller should
	// re-randomize and retry.
	ErrBadOAEPMod = fmt.Errorf("oaep modulus exceeds signing modulus")

	// ErrOAEP is returned when the all-or-nothing unpadding of a
	// candidate bond fails.
	ErrOAEP = fmt.Errorf("not a valid bond: oaep failure")

	// ErrMsgPrefix is returned when the unpadded envelope does not open
	// with the message prefix.
	ErrMsgPrefix = fmt.Errorf("not a valid bond: msg prefix failure")

	// ErrXPrefix is returned when the embedded seed does not open with
	// the seed prefix.
	ErrXPrefix = fmt.Errorf("not a valid bond: x prefix failure")

	// ErrHashMismatch is returned when the embedded digest does not
	// match the recomputed hash over (N, x).
	ErrHashMismatch = fmt.Errorf("not a valid bond: hash failure")

	// ErrSessionSpent is returned when a session is asked to unblind
	// after its nonce inverse has already been destroyed.
	ErrSessionSpent = fmt.Errorf("session nonce already destroyed")
)
