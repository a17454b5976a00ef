package mintrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Handler services one RPC method. kwargs is the raw JSON object from the
// request; the returned value is marshaled into the "good" response arm.
// Returning an *Error produces a "bad" response; any other error is
// internal and closes the connection.
type Handler func(kwargs json.RawMessage) (interface{}, error)

// Server accepts connections on a unix socket and dispatches framed calls
// to registered handlers. Connections are accepted concurrently but every
// handler invocation runs under one server-wide lock: the RPC boundary is
// the concurrency serializer for the stateful services behind it.
type Server struct {
	started  int32 // atomic
	shutdown int32 // atomic

	// handlerMtx is the global call lock described above.
	handlerMtx sync.Mutex

	handlers map[string]Handler

	listener net.Listener

	// connMtx guards conns, the set of live connections torn down on
	// shutdown.
	connMtx sync.Mutex
	conns   map[net.Conn]struct{}

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewServer creates a server with an empty method table.
func NewServer() *Server {
	return &Server{
		handlers: make(map[string]Handler),
		conns:    make(map[net.Conn]struct{}),
		quit:     make(chan struct{}),
	}
}

// Register adds a named method to the server. Registration must finish
// before Start; the table is read without locking afterwards.
func (s *Server) Register(method string, handler Handler) {
	s.handlers[method] = handler
}

// Start binds the socket and begins serving. Any stale socket file left by
// a previous run is removed first. The socket's mode is opened fully: the
// traversal permissions of its parent directory are the access control.
func (s *Server) Start(socketPath string) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0750); err != nil {
		return err
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(socketPath, 0777); err != nil {
		listener.Close()
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	log.Infof("RPC server listening on %s", socketPath)

	return nil
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.shutdown, 0, 1) {
		return nil
	}

	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}

	// Unblock handlers sitting in a read on a live connection.
	s.connMtx.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMtx.Unlock()

	s.wg.Wait()

	return nil
}

// acceptLoop admits connections until the listener closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			log.Errorf("Accept failed: %v", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn services one connection until the peer goes away or a
// protocol violation occurs.
func (s *Server) handleConn(conn net.Conn) {
	s.connMtx.Lock()
	s.conns[conn] = struct{}{}
	s.connMtx.Unlock()

	defer func() {
		conn.Close()

		s.connMtx.Lock()
		delete(s.conns, conn)
		s.connMtx.Unlock()
	}()

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		var req [2]json.RawMessage
		if err := decodeFrame(reader, &req); err != nil {
			// EOF is the normal end of a client session; anything
			// else is a framing error and the connection dies
			// either way.
			return
		}

		var method string
		if err := json.Unmarshal(req[0], &method); err != nil {
			return
		}

		resp, err := s.dispatch(method, req[1])
		if err != nil {
			log.Errorf("Dropping connection: %v", err)
			return
		}

		line, err := encodeFrame(resp)
		if err != nil {
			log.Errorf("Unable to encode response: %v", err)
			return
		}
		if _, err := conn.Write(line); err != nil {
			return
		}
	}
}

// dispatch runs one call under the global handler lock and shapes the
// response envelope. The returned error is non-nil only for internal
// failures that must kill the connection.
func (s *Server) dispatch(method string,
	kwargs json.RawMessage) ([2]interface{}, error) {

	handler, ok := s.handlers[method]
	if !ok {
		return [2]interface{}{}, fmt.Errorf("unknown method %q",
			method)
	}

	s.handlerMtx.Lock()
	result, err := handler(kwargs)
	s.handlerMtx.Unlock()

	if err != nil {
		rpcErr, ok := err.(*Error)
		if !ok {
			return [2]interface{}{}, fmt.Errorf("internal error "+
				"in %s: %v", method, err)
		}

		log.Debugf("Method %s signalled: %v", method, rpcErr)
		return [2]interface{}{"bad", rpcErr.Message}, nil
	}

	return [2]interface{}{"good", result}, nil
}
