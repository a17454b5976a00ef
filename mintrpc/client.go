package mintrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// Client is a connection to one service socket. A client may be shared by
// multiple goroutines; calls are serialized over the single connection.
type Client struct {
	mtx sync.Mutex

	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the service socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes method with the given kwargs value and unmarshals the
// "good" result into result (which may be nil to discard it). A "bad"
// response surfaces as *Error carrying the remote message; transport and
// framing failures surface as ordinary errors.
func (c *Client) Call(method string, kwargs interface{},
	result interface{}) error {

	c.mtx.Lock()
	defer c.mtx.Unlock()

	line, err := encodeFrame([2]interface{}{method, kwargs})
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(line); err != nil {
		return err
	}

	var resp [2]json.RawMessage
	if err := decodeFrame(c.reader, &resp); err != nil {
		return err
	}

	var status string
	if err := json.Unmarshal(resp[0], &status); err != nil {
		return err
	}

	switch status {
	case "good":
		if result == nil {
			return nil
		}
		return json.Unmarshal(resp[1], result)

	case "bad":
		var message string
		if err := json.Unmarshal(resp[1], &message); err != nil {
			return err
		}
		return &Error{Message: message}

	default:
		return fmt.Errorf("mintrpc: protocol violation: status %q",
			status)
	}
}
