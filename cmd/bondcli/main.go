// bondcli is the purchase client of the bond mint. It generates a blinded
// token, buys a quote, waits for the payment to clear, unblinds the
// returned protobond and stores the finished bond in a .bond file, talking
// to the seller server over Tor by default.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli"
)

const (
	// defaultBaseURL is the seller server's onion address.
	defaultBaseURL = "http://bondmntjw4tqkxbc.onion/"

	// mockBaseURL replaces the onion address under --mock, pointing at
	// a locally running seller front end.
	mockBaseURL = "http://127.0.0.1:9001/"

	// defaultSocksAddr is the Tor browser bundle's SOCKS5 listener.
	defaultSocksAddr = "127.0.0.1:9150"
)

var (
	bondmintHomeDir = btcutil.AppDataDir("bondmint", false)

	// defaultKeyDir is where the distributed mint key material lives:
	// signing_public_key.pem and oaep_key.pem.
	defaultKeyDir = filepath.Join(bondmintHomeDir, "clientkeys")
)

// fatal reports an unrecoverable error and exits with status 2.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[bondcli] %v\n", err)
	os.Exit(2)
}

func main() {
	app := cli.NewApp()
	app.Name = "bondcli"
	app.Version = "0.2.0-alpha"
	app.Usage = "purchase and verify anonymous bitcoin bonds"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "url",
			Value: defaultBaseURL,
			Usage: "base URL of the seller server",
		},
		cli.StringFlag{
			Name:  "keydir",
			Value: defaultKeyDir,
			Usage: "directory holding the mint's public key " +
				"material",
		},
		cli.StringFlag{
			Name:  "socks",
			Value: defaultSocksAddr,
			Usage: "SOCKS5 proxy used to reach the server",
		},
		cli.BoolFlag{
			Name:  "nosave",
			Usage: "print the bond instead of writing a .bond file",
		},
		cli.BoolFlag{
			Name:  "mock",
			Usage: "talk to a local mock server",
		},
		cli.BoolFlag{
			Name:  "bypasstor",
			Usage: "connect directly instead of through the " +
				"SOCKS5 proxy",
		},
	}
	app.Commands = []cli.Command{
		buyCommand,
		verifyCommand,
	}
	// Running bare is buying: the one-command flow is the whole point
	// of the client.
	app.Action = runBuy

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
