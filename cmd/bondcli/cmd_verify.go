package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/bondmint/bondmint/blindsig"
)

var verifyCommand = cli.Command{
	Name:      "verify",
	Usage:     "verify a stored bond",
	ArgsUsage: "bond-file",
	Description: `
	Checks that the bond in the given .bond file carries a valid mint
	signature. Verification is purely local; the mint is not contacted
	and learns nothing.`,
	Action: runVerify,
}

func runVerify(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "verify")
	}

	params, err := loadClientParams(ctx)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}

	bond := strings.TrimSpace(string(raw))
	if _, err := blindsig.Verify(params, bond); err != nil {
		return fmt.Errorf("invalid bond: %v", err)
	}

	fmt.Println("Valid bond!")

	return nil
}
