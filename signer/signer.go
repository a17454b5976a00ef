// Package signer is the Sign service: the only principal holding the
// signing private key. It exposes a single deterministic operation that
// raises a blinded token to the private exponent, and nothing else — no
// padding, no randomness, no visibility into what it signs.
package signer

import (
	"crypto/rsa"
	"encoding/json"

	"github.com/bondmint/bondmint/blindsig"
	"github.com/bondmint/bondmint/mintrpc"
)

// Service is the RPC name of the sign service.
const Service = "Sign"

// Signer wraps the signing key.
type Signer struct {
	key *rsa.PrivateKey
}

// New creates a Signer around an in-memory key.
func New(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// LoadSigner reads the PEM-encoded signing key at path.
func LoadSigner(path string) (*Signer, error) {
	key, err := blindsig.LoadRSAPrivateKey(path)
	if err != nil {
		return nil, err
	}

	return New(key), nil
}

// Sign turns an encoded token into an encoded protobond.
func (s *Signer) Sign(token string) (string, error) {
	return blindsig.Sign(s.key, token)
}

type signReq struct {
	Token string `json:"token"`
}

// RegisterService exposes the sign operation on the given RPC server.
func RegisterService(srv *mintrpc.Server, s *Signer) {
	srv.Register("sign", func(kwargs json.RawMessage) (interface{},
		error) {

		var req signReq
		if err := json.Unmarshal(kwargs, &req); err != nil {
			return nil, err
		}

		protobond, err := s.Sign(req.Token)
		if err != nil {
			return nil, mintrpc.NewError(err)
		}

		log.Debugf("Signed token of %d bytes", len(req.Token))

		return protobond, nil
	})
}

// Client is the typed stub for the sign service.
type Client struct {
	rpc *mintrpc.Client
}

// NewClient wraps an established RPC connection.
func NewClient(rpc *mintrpc.Client) *Client {
	return &Client{rpc: rpc}
}

// Sign mirrors Signer.Sign across the RPC boundary.
func (c *Client) Sign(token string) (string, error) {
	var protobond string
	err := c.rpc.Call("sign", &signReq{Token: token}, &protobond)
	return protobond, err
}
