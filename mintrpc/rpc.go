// Package mintrpc implements the internal RPC plumbing between the mint's
// privilege-separated services: a unix-domain stream socket carrying one
// hex-encoded JSON document per line in each direction.
//
// A request line decodes to [method, kwargs]; a response line decodes to
// ["good", result] or ["bad", message]. Domain errors raised by a handler
// cross the boundary verbatim in the "bad" arm and re-surface at the caller
// as the same error kind; anything else — framing damage, unknown methods,
// internal failures — tears down the connection instead.
package mintrpc

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// SocketName is the leaf name of every service socket.
const SocketName = "sock"

// SocketPath returns the conventional socket path for a named service
// under the given RPC root directory: <root>/<Service>/sock. The per
// service directory is the access-control boundary; the socket itself is
// world-writable.
func SocketPath(rpcRoot, service string) string {
	return filepath.Join(rpcRoot, service, SocketName)
}

// Error is a domain error that passes transparently across the RPC
// boundary. Handlers return it to signal callers; every other handler
// error is treated as internal and kills the connection.
type Error struct {
	Message string
}

// NewError builds an Error carrying the message of err.
func NewError(err error) *Error {
	return &Error{Message: err.Error()}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is matches an Error against a local error value by message, so that a
// caller-side errors.Is(err, bonddb.ErrDuplicateToken) holds exactly when
// the remote handler returned that kind.
func (e *Error) Is(target error) bool {
	return target != nil && target.Error() == e.Message
}

// encodeFrame renders v as one wire line: hex(json(v)) plus the trailing
// newline.
func encodeFrame(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	line := make([]byte, hex.EncodedLen(len(payload))+1)
	hex.Encode(line, payload)
	line[len(line)-1] = '\n'

	return line, nil
}

// decodeFrame reads one line from r and unmarshals its hex-encoded JSON
// payload into v.
func decodeFrame(r *bufio.Reader, v interface{}) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}

	payload, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("mintrpc: bad frame encoding: %v", err)
	}

	return json.Unmarshal(payload, v)
}
