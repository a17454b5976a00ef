// bondmintd is the anonymous Bitcoin bond mint daemon. Run bare it acts
// as the supervisor, launching every service as a separate least-privilege
// process; run with --service=<Name> it becomes that single service; run
// with --genkeys it provisions key material and databases.
package main

import (
	"fmt"
	"os"
)

const appName = "bondmintd"

// bmntMain is the true entry point for bondmintd. This function is
// required since defers created in the top-level scope of a main method
// aren't executed if os.Exit() is called.
func bmntMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	bmntLog.Infof("Version %s", version())

	switch {
	case cfg.GenKeys:
		return genKeys(cfg)

	case cfg.Service != "":
		return serviceMain(cfg)

	default:
		return newSupervisor(cfg).run()
	}
}

func main() {
	if err := bmntMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
