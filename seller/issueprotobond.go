package seller

import (
	"encoding/json"

	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/mintrpc"
	"github.com/bondmint/bondmint/signer"
)

// IssueProtobondService is the RPC name of the protobond-issue service.
const IssueProtobondService = "IssueProtobond"

// IssueProtobond drives the second half of a sale: once the quoted address
// has been paid, the token is signed into a protobond and the sale row is
// flagged for collection.
type IssueProtobond struct {
	db    *bonddb.SellerDBClient
	check *CheckClient
	sign  *signer.Client
}

// NewIssueProtobond builds the issue service over its three collaborating
// stubs.
func NewIssueProtobond(db *bonddb.SellerDBClient, check *CheckClient,
	sign *signer.Client) *IssueProtobond {

	return &IssueProtobond{db: db, check: check, sign: sign}
}

// Issue returns the protobond for token, or ErrNoSuchToken /
// ErrPaymentNotReceived while the sale is not ready.
//
// Marking the row is best-effort by design: signing is a pure function of
// the token, so a client re-requesting after a crash between sign and mark
// receives the identical protobond and the counter simply increments
// again.
func (i *IssueProtobond) Issue(token string) (string, error) {
	row, err := i.db.Get(token)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", mintrpc.NewError(ErrNoSuchToken)
	}

	paid, err := i.check.Check(row.Address, row.Price)
	if err != nil {
		return "", err
	}
	if !paid {
		return "", mintrpc.NewError(ErrPaymentNotReceived)
	}

	protobond, err := i.sign.Sign(token)
	if err != nil {
		return "", err
	}

	// The flag makes the row visible to the collector and is the
	// pruning hint for operators.
	if err := i.db.MarkProtobondSent(token); err != nil {
		return "", err
	}

	log.Infof("Issued protobond for paid address %s", row.Address)

	return protobond, nil
}

// RegisterIssueProtobondService exposes the issue operation on the given
// RPC server.
func RegisterIssueProtobondService(srv *mintrpc.Server, i *IssueProtobond) {
	srv.Register("issue_protobond",
		func(kwargs json.RawMessage) (interface{}, error) {
			var req struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(kwargs, &req); err != nil {
				return nil, err
			}

			return i.Issue(req.Token)
		})
}

// IssueProtobondClient is the typed stub for the issue service.
type IssueProtobondClient struct {
	rpc *mintrpc.Client
}

// NewIssueProtobondClient wraps an established RPC connection.
func NewIssueProtobondClient(rpc *mintrpc.Client) *IssueProtobondClient {
	return &IssueProtobondClient{rpc: rpc}
}

// Issue mirrors IssueProtobond.Issue across the RPC boundary.
func (c *IssueProtobondClient) Issue(token string) (string, error) {
	var protobond string
	err := c.rpc.Call("issue_protobond", &struct {
		Token string `json:"token"`
	}{Token: token}, &protobond)
	return protobond, err
}
