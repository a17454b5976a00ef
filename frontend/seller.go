// Package frontend carries the two public HTTP faces of the mint: the
// seller endpoints the purchase client talks to, and the redeemer form
// users upload bonds to. Both are thin translators between HTTP and the
// internal RPC services; they hold no state and no secrets.
package frontend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bondmint/bondmint/mintrpc"
	"github.com/bondmint/bondmint/seller"
)

// maxRequestBytes caps every request body. Tokens are about a kilobyte;
// anything near the cap is garbage.
const maxRequestBytes = 10 * 1024

// SellerFrontend serves the purchase endpoints.
type SellerFrontend struct {
	quote *seller.GenQuoteClient
	issue *seller.IssueProtobondClient
}

// NewSellerFrontend builds the seller front end over its two service
// stubs.
func NewSellerFrontend(quote *seller.GenQuoteClient,
	issue *seller.IssueProtobondClient) *SellerFrontend {

	return &SellerFrontend{quote: quote, issue: issue}
}

// Handler returns the route table of the seller front end.
func (f *SellerFrontend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", f.handleConnect)
	mux.HandleFunc("/quote", f.handleQuote)
	mux.HandleFunc("/protobond", f.handleProtobond)
	return mux
}

// Serve blocks serving the seller endpoints on addr.
func (f *SellerFrontend) Serve(addr string) error {
	log.Infof("Seller front end listening on %s", addr)
	return http.ListenAndServe(addr, f.Handler())
}

// handleConnect is the client's reachability probe.
func (f *SellerFrontend) handleConnect(w http.ResponseWriter,
	r *http.Request) {

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleQuote maps POST {token} to the quote service.
func (f *SellerFrontend) handleQuote(w http.ResponseWriter,
	r *http.Request) {

	token, ok := formToken(w, r)
	if !ok {
		return
	}

	addr, price, err := f.quote.Quote(token)
	if err != nil {
		writeRPCError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"addr":  addr,
		"price": price,
	})
}

// handleProtobond maps POST {token} to the issue service. While the sale
// is still awaiting payment the response is a null protobond, which the
// client polls against.
func (f *SellerFrontend) handleProtobond(w http.ResponseWriter,
	r *http.Request) {

	token, ok := formToken(w, r)
	if !ok {
		return
	}

	protobond, err := f.issue.Issue(token)
	switch {
	case errors.Is(err, seller.ErrPaymentNotReceived):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"protobond": nil,
		})
		return

	case err != nil:
		writeRPCError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"protobond": protobond,
	})
}

// formToken extracts the token field from a size-capped form post,
// answering the request itself on failure.
func formToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed",
			http.StatusMethodNotAllowed)
		return "", false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "the token you tried to upload was too large",
			http.StatusRequestEntityTooLarge)
		return "", false
	}

	token := r.PostFormValue("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "missing token",
		})
		return "", false
	}

	return token, true
}

// writeRPCError renders a service failure: domain errors become a JSON
// error with a client error status, transport failures a bare 502.
func writeRPCError(w http.ResponseWriter, err error) {
	var rpcErr *mintrpc.Error
	if errors.As(err, &rpcErr) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": rpcErr.Message,
		})
		return
	}

	log.Errorf("Service call failed: %v", err)
	http.Error(w, "service unavailable", http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Unable to encode response: %v", err)
	}
}
