package chainio

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// defaultExplorerURL is the mainnet endpoint of the blockchain.info-style
// explorer API the mint queries. Trusting an explorer for balances is an
// accepted deployment shortcut; a production mint would run its own node
// behind the same interface.
const defaultExplorerURL = "https://blockchain.info"

// explorerTimeout caps each HTTP round trip to the explorer.
const explorerTimeout = 30 * time.Second

// unspentResponse mirrors the explorer's unspent-outputs JSON.
type unspentResponse struct {
	UnspentOutputs []unspentOutput `json:"unspent_outputs"`
}

type unspentOutput struct {
	TxHashBigEndian string `json:"tx_hash_big_endian"`
	TxOutputN       uint32 `json:"tx_output_n"`
	Script          string `json:"script"`
	Value           int64  `json:"value"`
}

// ExplorerClient implements ChainIO against a blockchain.info-compatible
// HTTP explorer.
type ExplorerClient struct {
	baseURL string
	client  *http.Client
}

// NewExplorerClient returns a client for the explorer at baseURL, or the
// default endpoint when baseURL is empty.
func NewExplorerClient(baseURL string) *ExplorerClient {
	if baseURL == "" {
		baseURL = defaultExplorerURL
	}

	return &ExplorerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: explorerTimeout},
	}
}

// UnspentOutputs queries the explorer for the unspent outputs of addr. An
// address the explorer has never seen yields an empty set, not an error.
func (e *ExplorerClient) UnspentOutputs(addr btcutil.Address) ([]*Utxo,
	error) {

	endpoint := fmt.Sprintf(
		"%s/unspent?active=%s", e.baseURL,
		url.QueryEscape(addr.EncodeAddress()),
	)

	resp, err := e.client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// The explorer answers 500 with a plain-text message for addresses
	// without history.
	if resp.StatusCode == http.StatusInternalServerError &&
		strings.Contains(string(body), "No free outputs") {

		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chainio: explorer status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed unspentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("chainio: bad explorer response: %v",
			err)
	}

	utxos := make([]*Utxo, 0, len(parsed.UnspentOutputs))
	for _, out := range parsed.UnspentOutputs {
		txHash, err := chainhash.NewHashFromStr(out.TxHashBigEndian)
		if err != nil {
			return nil, err
		}

		pkScript, err := hex.DecodeString(out.Script)
		if err != nil {
			return nil, err
		}

		utxos = append(utxos, &Utxo{
			TxHash:   *txHash,
			Index:    out.TxOutputN,
			Value:    btcutil.Amount(out.Value),
			PkScript: pkScript,
		})
	}

	log.Debugf("Explorer reports %d unspent output(s) for %s",
		len(utxos), addr.EncodeAddress())

	return utxos, nil
}

// PublishTransaction serializes tx and pushes it through the explorer's
// pushtx endpoint.
func (e *ExplorerClient) PublishTransaction(tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}

	form := url.Values{"tx": {hex.EncodeToString(buf.Bytes())}}
	resp, err := e.client.PostForm(e.baseURL+"/pushtx", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(resp.Body)
		return fmt.Errorf("chainio: pushtx status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Infof("Published transaction %v", tx.TxHash())

	return nil
}
