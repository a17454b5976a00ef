package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/net/proxy"
)

// sellerClient talks to the seller server's three endpoints.
type sellerClient struct {
	baseURL string
	client  *http.Client
}

// newSellerClient builds the HTTP client from the global flags. Unless
// Tor is bypassed, every connection goes through the SOCKS5 proxy; the
// proxy also resolves names, so no DNS query ever leaves the machine.
func newSellerClient(ctx *cli.Context) (*sellerClient, error) {
	baseURL := ctx.GlobalString("url")
	if ctx.GlobalBool("mock") {
		baseURL = mockBaseURL
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	if !ctx.GlobalBool("bypasstor") {
		dialer, err := proxy.SOCKS5(
			"tcp", ctx.GlobalString("socks"), nil, proxy.Direct,
		)
		if err != nil {
			return nil, err
		}

		httpClient.Transport = &http.Transport{Dial: dialer.Dial}
	}

	return &sellerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}, nil
}

// post sends one form-encoded request and decodes the JSON reply.
func (s *sellerClient) post(path string, form url.Values,
	result interface{}) error {

	resp, err := s.client.PostForm(s.baseURL+"/"+path, form)
	if err != nil {
		return fmt.Errorf("unable to connect to server: %v", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("JSON error in returned data: %v", err)
	}

	return nil
}

// connect probes the server.
func (s *sellerClient) connect() error {
	var reply struct {
		Success bool `json:"success"`
	}
	if err := s.post("connect", url.Values{}, &reply); err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("server refused connection probe")
	}

	return nil
}

// fetchQuote submits the token and returns the deposit address and price.
func (s *sellerClient) fetchQuote(token string) (string, int64, error) {
	var reply struct {
		Addr  string `json:"addr"`
		Price int64  `json:"price"`
		Error string `json:"error"`
	}
	form := url.Values{"token": {token}}
	if err := s.post("quote", form, &reply); err != nil {
		return "", 0, err
	}
	if reply.Error != "" {
		return "", 0, fmt.Errorf("server error: %s", reply.Error)
	}

	return reply.Addr, reply.Price, nil
}

// fetchProtobond polls for the protobond. The second return reports
// whether it is ready yet; a null protobond means payment has not cleared.
func (s *sellerClient) fetchProtobond(token string) (string, bool, error) {
	var reply struct {
		Protobond *string `json:"protobond"`
		Error     string  `json:"error"`
	}
	form := url.Values{"token": {token}}
	if err := s.post("protobond", form, &reply); err != nil {
		return "", false, err
	}
	if reply.Error != "" {
		return "", false, fmt.Errorf("server error: %s", reply.Error)
	}
	if reply.Protobond == nil {
		return "", false, nil
	}

	return *reply.Protobond, true, nil
}
