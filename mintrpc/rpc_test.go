package mintrpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTeapot = errors.New("short and stout")

// startTestServer brings up a server with an echo method, a failing
// method and a crashing method on a socket under a temp dir.
func startTestServer(t *testing.T) string {
	t.Helper()

	srv := NewServer()
	srv.Register("echo", func(kwargs json.RawMessage) (interface{},
		error) {

		var req struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(kwargs, &req); err != nil {
			return nil, err
		}
		return req.Value, nil
	})
	srv.Register("teapot", func(kwargs json.RawMessage) (interface{},
		error) {

		return nil, NewError(errTeapot)
	})
	srv.Register("crash", func(kwargs json.RawMessage) (interface{},
		error) {

		return nil, fmt.Errorf("internal details leak nothing")
	})

	socket := SocketPath(t.TempDir(), "Echo")
	require.NoError(t, srv.Start(socket))
	t.Cleanup(func() { srv.Stop() })

	return socket
}

// TestCallRoundTrip covers a plain successful call, twice over the same
// connection.
func TestCallRoundTrip(t *testing.T) {
	socket := startTestServer(t)

	client, err := Dial(socket)
	require.NoError(t, err)
	defer client.Close()

	for _, value := range []string{"first", "second"} {
		var got string
		err = client.Call("echo", map[string]string{"value": value},
			&got)
		require.NoError(t, err)
		require.Equal(t, value, got)
	}
}

// TestErrorPassthrough asserts a handler's domain error re-surfaces at
// the caller as the same kind under errors.Is, and that the connection
// stays usable afterwards.
func TestErrorPassthrough(t *testing.T) {
	socket := startTestServer(t)

	client, err := Dial(socket)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call("teapot", struct{}{}, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, errTeapot)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, errTeapot.Error(), rpcErr.Message)

	var got string
	err = client.Call("echo", map[string]string{"value": "alive"}, &got)
	require.NoError(t, err)
	require.Equal(t, "alive", got)
}

// TestInternalErrorClosesConnection asserts non-domain handler errors are
// not leaked to the peer: the connection just dies.
func TestInternalErrorClosesConnection(t *testing.T) {
	socket := startTestServer(t)

	client, err := Dial(socket)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call("crash", struct{}{}, nil)
	require.Error(t, err)

	var rpcErr *Error
	require.False(t, errors.As(err, &rpcErr),
		"internal error must not surface as a domain error")
}

// TestUnknownMethodClosesConnection mirrors the handler-crash behavior
// for method table misses.
func TestUnknownMethodClosesConnection(t *testing.T) {
	socket := startTestServer(t)

	client, err := Dial(socket)
	require.NoError(t, err)
	defer client.Close()

	require.Error(t, client.Call("no_such_method", struct{}{}, nil))
}

// TestFramingErrorClosesConnection writes garbage instead of a frame.
func TestFramingErrorClosesConnection(t *testing.T) {
	socket := startTestServer(t)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("this is not hex\n"))
	require.NoError(t, err)

	// The server must close without answering.
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err)
}

// TestWireFormat pins the exact frame layout: hex of JSON, one line each
// way, ["good", result] envelope.
func TestWireFormat(t *testing.T) {
	socket := startTestServer(t)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	request := `["echo",{"value":"ping"}]`
	_, err = conn.Write([]byte(hex.EncodeToString([]byte(request)) +
		"\n"))
	require.NoError(t, err)

	reply := make([]byte, 256)
	n, err := conn.Read(reply)
	require.NoError(t, err)
	require.Equal(t, byte('\n'), reply[n-1])

	decoded, err := hex.DecodeString(string(reply[:n-1]))
	require.NoError(t, err)
	require.JSONEq(t, `["good","ping"]`, string(decoded))
}

// TestSocketPathConvention pins the directory layout the supervisor's
// access control depends on.
func TestSocketPathConvention(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		filepath.Join("rpc", "SellerDB", "sock"),
		SocketPath("rpc", "SellerDB"))
}
