package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/bondmint/bondmint/blindsig"
)

// checkPeriod is how long the client waits between protobond polls while
// the payment clears.
const checkPeriod = 10 * time.Second

var buyCommand = cli.Command{
	Name:  "buy",
	Usage: "purchase one bond",
	Description: `
	Generates a blinded token, submits it for a quote, waits until the
	quoted address has been paid, then unblinds the returned protobond
	into a bond, verifies it locally and stores it in a .bond file in
	the working directory.`,
	Action: runBuy,
}

func runBuy(ctx *cli.Context) error {
	params, err := loadClientParams(ctx)
	if err != nil {
		return err
	}

	server, err := newSellerClient(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Now running: bond purchase")
	if ctx.GlobalBool("mock") {
		fmt.Println("ENTERING MOCK MODE")
	}

	printf("Testing connection to the mint.....")
	if err := server.connect(); err != nil {
		return err
	}
	fmt.Println("Done.")

	printf("Generating token.....")
	session, err := blindsig.NewSession(params)
	if err != nil {
		return err
	}
	defer session.Close()
	token := session.Token()
	fmt.Println("Done.")

	printf("Sending token to server.....")
	addr, price, err := server.fetchQuote(token)
	if err != nil {
		return err
	}
	fmt.Println("Done.")

	fmt.Println()
	fmt.Println("You have successfully submitted a token to the server.")
	fmt.Printf("To purchase the bond, please send %d satoshi to this "+
		"address: %s\n", price, addr)
	fmt.Println()
	fmt.Printf("Checking for the protobond every %v:\n", checkPeriod)

	protobond, ready, err := server.fetchProtobond(token)
	if err != nil {
		return err
	}
	for !ready {
		printf("Bitcoin not yet received. Waiting.....")
		for i := 0; i < int(checkPeriod/time.Second); i++ {
			time.Sleep(time.Second)
			printf(".")
		}
		fmt.Println()

		protobond, ready, err = server.fetchProtobond(token)
		if err != nil {
			return err
		}
	}
	fmt.Println("Transaction cleared!")
	fmt.Println()

	printf("Generating bond.....")
	bond, err := session.Unblind(protobond)
	if err != nil {
		return err
	}
	fmt.Println("Done.")

	printf("Validating bond.....")
	if _, err := blindsig.Verify(params, bond); err != nil {
		return fmt.Errorf("server delivered an invalid bond: %v", err)
	}
	fmt.Println("Done.")

	if ctx.GlobalBool("nosave") {
		fmt.Println()
		fmt.Println("Congrats! You have successfully purchased a " +
			"bond. Here it is:")
		fmt.Println()
		fmt.Println(bond)
	} else {
		printf("Saving bond.....")
		filename, err := saveBond(bond, ctx.GlobalBool("mock"))
		if err != nil {
			return err
		}
		fmt.Println("Done.")

		absPath, _ := filepath.Abs(filename)
		fmt.Println()
		fmt.Println("Congrats! You have successfully purchased a " +
			"bond. It has been stored here:")
		fmt.Println()
		fmt.Println(absPath)
	}

	fmt.Println()
	fmt.Println("Remember to wait a few days before trying to redeem " +
		"your bond.")
	fmt.Println()

	return nil
}

// saveBond writes the bond to a fresh randomly named .bond file.
func saveBond(bond string, mock bool) (string, error) {
	var nameBytes [16]byte
	if _, err := rand.Read(nameBytes[:]); err != nil {
		return "", err
	}

	filename := strings.ToUpper(hex.EncodeToString(nameBytes[:])) +
		".bond"
	if mock {
		filename = "mock-" + filename
	}

	err := os.WriteFile(filename, []byte(bond), 0600)
	if err != nil {
		return "", err
	}

	return filename, nil
}

// loadClientParams reads the distributed mint key material.
func loadClientParams(ctx *cli.Context) (*blindsig.Params, error) {
	keyDir := ctx.GlobalString("keydir")

	return blindsig.LoadParams(
		filepath.Join(keyDir, "signing_public_key.pem"),
		filepath.Join(keyDir, "oaep_key.pem"),
	)
}

// printf writes to the display without the automatic newline.
func printf(s string) {
	fmt.Print(s)
	os.Stdout.Sync()
}
