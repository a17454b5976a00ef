package frontend

import (
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"

	"github.com/bondmint/bondmint/mintrpc"
	"github.com/bondmint/bondmint/redeemer"
)

// redeemPage is the upload form served at the root of the redeemer site.
const redeemPage = `<!DOCTYPE html>
<html>
<head><title>Bond Redemption</title></head>
<body>
<h1>Redeem a bond</h1>
<p>Upload your .bond file and the Bitcoin address the payout should go
to. Each bond can be redeemed exactly once.</p>
<form action="/bond" method="post" enctype="multipart/form-data">
<p>Bond file: <input type="file" name="bond_file"></p>
<p>Payout address: <input type="text" name="to_addr" size="40"></p>
<p><input type="submit" value="Redeem"></p>
</form>
</body>
</html>
`

// RedeemerFrontend serves the redemption form and upload endpoint.
type RedeemerFrontend struct {
	redeem *redeemer.Client
}

// NewRedeemerFrontend builds the redeemer front end over its service
// stub.
func NewRedeemerFrontend(redeem *redeemer.Client) *RedeemerFrontend {
	return &RedeemerFrontend{redeem: redeem}
}

// Handler returns the route table of the redeemer front end.
func (f *RedeemerFrontend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleIndex)
	mux.HandleFunc("/bond", f.handleBond)
	return mux
}

// Serve blocks serving the redeemer endpoints on addr.
func (f *RedeemerFrontend) Serve(addr string) error {
	log.Infof("Redeemer front end listening on %s", addr)
	return http.ListenAndServe(addr, f.Handler())
}

func (f *RedeemerFrontend) handleIndex(w http.ResponseWriter,
	r *http.Request) {

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, redeemPage)
}

// handleBond accepts the multipart upload, hands the bond to the redeemer
// service, and renders the outcome as a page.
func (f *RedeemerFrontend) handleBond(w http.ResponseWriter,
	r *http.Request) {

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed",
			http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
		renderResult(w, http.StatusRequestEntityTooLarge,
			"The bond you tried to upload was too large.")
		return
	}

	file, _, err := r.FormFile("bond_file")
	if err != nil {
		renderResult(w, http.StatusBadRequest, "No bond file in "+
			"upload.")
		return
	}
	defer file.Close()

	bond, err := io.ReadAll(io.LimitReader(file, maxRequestBytes))
	if err != nil {
		renderResult(w, http.StatusBadRequest, "Unable to read bond "+
			"file.")
		return
	}

	toAddr := r.FormValue("to_addr")
	if toAddr == "" {
		renderResult(w, http.StatusBadRequest, "No payout address "+
			"given.")
		return
	}

	err = f.redeem.Redeem(string(bond), toAddr)
	if err != nil {
		var rpcErr *mintrpc.Error
		if errors.As(err, &rpcErr) {
			renderResult(w, http.StatusBadRequest,
				"Redemption failed: "+rpcErr.Message+".")
			return
		}

		log.Errorf("Redeem call failed: %v", err)
		renderResult(w, http.StatusBadGateway,
			"The redemption service is unavailable; try again "+
				"later.")
		return
	}

	renderResult(w, http.StatusOK, "Success! Your bond has been "+
		"accepted and the payout will be sent to "+toAddr+".")
}

// renderResult writes a minimal HTML result page.
func renderResult(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><body><p>%s</p>"+
		"<p><a href=\"/\">Back</a></p></body></html>\n",
		html.EscapeString(message))
}
