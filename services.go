package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
	"github.com/bondmint/bondmint/collector"
	"github.com/bondmint/bondmint/dispenser"
	"github.com/bondmint/bondmint/frontend"
	"github.com/bondmint/bondmint/mintrpc"
	"github.com/bondmint/bondmint/redeemer"
	"github.com/bondmint/bondmint/seller"
	"github.com/bondmint/bondmint/signer"
)

// Service names, also the RPC socket directory names. Declaration order
// here is the supervisor's spawn order and must respect RPC dependencies.
const (
	svcSellerDB       = "SellerDB"
	svcSign           = "Sign"
	svcCheck          = "Check"
	svcGenQuote       = "GenQuote"
	svcIssueProtobond = "IssueProtobond"
	svcSeller         = "Seller"
	svcRedeemerDB     = "RedeemerDB"
	svcBondRedeemer   = "BondRedeemer"
	svcRedeemer       = "Redeemer"
	svcCollector      = "Collector"
	svcDispenser      = "Dispenser"
)

// Loop cadences of the two wallet daemons.
const (
	collectInterval  = 5 * time.Second
	dispenseInterval = 60 * time.Second
)

// serviceTable maps every service name to its entry point. The supervisor
// re-execs this binary with --service=<name> for each row.
var serviceTable = map[string]func(*config) error{
	svcSellerDB:       runSellerDB,
	svcSign:           runSign,
	svcCheck:          runCheck,
	svcGenQuote:       runGenQuote,
	svcIssueProtobond: runIssueProtobond,
	svcSeller:         runSellerFrontend,
	svcRedeemerDB:     runRedeemerDB,
	svcBondRedeemer:   runBondRedeemer,
	svcRedeemer:       runRedeemerFrontend,
	svcCollector:      runCollector,
	svcDispenser:      runDispenser,
}

// serviceMain runs the single service selected by the configuration until
// an interrupt arrives.
func serviceMain(cfg *config) error {
	run, ok := serviceTable[cfg.Service]
	if !ok {
		return fmt.Errorf("unknown service %q", cfg.Service)
	}

	bmntLog.Infof("Starting service %s", cfg.Service)

	return run(cfg)
}

// serveRPC starts srv on the conventional socket of the named service and
// blocks until shutdown.
func serveRPC(cfg *config, name string, srv *mintrpc.Server) error {
	socket := mintrpc.SocketPath(cfg.RPCDir, name)
	if err := srv.Start(socket); err != nil {
		return err
	}
	defer srv.Stop()

	waitForInterrupt()
	bmntLog.Infof("Service %s shutting down", name)

	return nil
}

// dialService connects to a sibling service, retrying briefly to paper
// over start ordering during manual launches. Under the supervisor the
// socket always exists before dependents spawn.
func dialService(cfg *config, name string) (*mintrpc.Client, error) {
	socket := mintrpc.SocketPath(cfg.RPCDir, name)

	var (
		client *mintrpc.Client
		err    error
	)
	for i := 0; i < 50; i++ {
		client, err = mintrpc.Dial(socket)
		if err == nil {
			return client, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("unable to reach %s: %v", name, err)
}

func runSellerDB(cfg *config) error {
	db, err := bonddb.OpenSellerDB(
		cfg.dataFile(resSellerDatabase, ""),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := mintrpc.NewServer()
	bonddb.RegisterSellerDBService(srv, db)

	return serveRPC(cfg, svcSellerDB, srv)
}

func runRedeemerDB(cfg *config) error {
	db, err := bonddb.OpenRedeemerDB(
		cfg.dataFile(resRedeemerDatabase, ""),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := mintrpc.NewServer()
	bonddb.RegisterRedeemerDBService(srv, db)

	return serveRPC(cfg, svcRedeemerDB, srv)
}

func runSign(cfg *config) error {
	s, err := signer.LoadSigner(
		cfg.dataFile(resSigningPrivKey, resSigningPrivKey+".pem"),
	)
	if err != nil {
		return err
	}

	srv := mintrpc.NewServer()
	signer.RegisterService(srv, s)

	return serveRPC(cfg, svcSign, srv)
}

func runCheck(cfg *config) error {
	chain := chainio.NewExplorerClient(cfg.ExplorerURL)
	check := seller.NewCheck(chain, cfg.netParams())

	srv := mintrpc.NewServer()
	seller.RegisterCheckService(srv, check)

	return serveRPC(cfg, svcCheck, srv)
}

func runGenQuote(cfg *config) error {
	mpk, err := loadMasterPubKey(cfg)
	if err != nil {
		return err
	}

	dbConn, err := dialService(cfg, svcSellerDB)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	gq := seller.NewGenQuote(mpk, bonddb.NewSellerDBClient(dbConn))

	srv := mintrpc.NewServer()
	seller.RegisterGenQuoteService(srv, gq)

	return serveRPC(cfg, svcGenQuote, srv)
}

func runIssueProtobond(cfg *config) error {
	dbConn, err := dialService(cfg, svcSellerDB)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	checkConn, err := dialService(cfg, svcCheck)
	if err != nil {
		return err
	}
	defer checkConn.Close()

	signConn, err := dialService(cfg, svcSign)
	if err != nil {
		return err
	}
	defer signConn.Close()

	issue := seller.NewIssueProtobond(
		bonddb.NewSellerDBClient(dbConn),
		seller.NewCheckClient(checkConn),
		signer.NewClient(signConn),
	)

	srv := mintrpc.NewServer()
	seller.RegisterIssueProtobondService(srv, issue)

	return serveRPC(cfg, svcIssueProtobond, srv)
}

func runBondRedeemer(cfg *config) error {
	sigParams, err := loadSigParams(cfg)
	if err != nil {
		return err
	}

	dbConn, err := dialService(cfg, svcRedeemerDB)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	r := redeemer.New(
		sigParams, cfg.netParams(),
		bonddb.NewRedeemerDBClient(dbConn),
	)

	srv := mintrpc.NewServer()
	redeemer.RegisterService(srv, r)

	return serveRPC(cfg, svcBondRedeemer, srv)
}

func runSellerFrontend(cfg *config) error {
	quoteConn, err := dialService(cfg, svcGenQuote)
	if err != nil {
		return err
	}
	defer quoteConn.Close()

	issueConn, err := dialService(cfg, svcIssueProtobond)
	if err != nil {
		return err
	}
	defer issueConn.Close()

	fe := frontend.NewSellerFrontend(
		seller.NewGenQuoteClient(quoteConn),
		seller.NewIssueProtobondClient(issueConn),
	)

	return fe.Serve(cfg.SellerListen)
}

func runRedeemerFrontend(cfg *config) error {
	redeemConn, err := dialService(cfg, svcBondRedeemer)
	if err != nil {
		return err
	}
	defer redeemConn.Close()

	fe := frontend.NewRedeemerFrontend(redeemer.NewClient(redeemConn))

	return fe.Serve(cfg.RedeemerListen)
}

func runCollector(cfg *config) error {
	masterKey, err := loadMasterPrivKey(cfg)
	if err != nil {
		return err
	}

	mixinAddr, err := loadAddressFile(cfg, resMixinAddress)
	if err != nil {
		return err
	}

	dbConn, err := dialService(cfg, svcSellerDB)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	checkConn, err := dialService(cfg, svcCheck)
	if err != nil {
		return err
	}
	defer checkConn.Close()

	c := collector.New(&collector.Config{
		MasterKey:    masterKey,
		MixinAddress: mixinAddr,
		Chain:        chainio.NewExplorerClient(cfg.ExplorerURL),
		DB:           bonddb.NewSellerDBClient(dbConn),
		Check:        seller.NewCheckClient(checkConn),
		Ticker:       ticker.New(collectInterval),
	})
	if err := c.Start(); err != nil {
		return err
	}
	defer c.Stop()

	waitForInterrupt()

	return nil
}

func runDispenser(cfg *config) error {
	key, err := loadDispenserKey(cfg)
	if err != nil {
		return err
	}

	dbConn, err := dialService(cfg, svcRedeemerDB)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	d, err := dispenser.New(&dispenser.Config{
		Key:       key,
		Chain:     chainio.NewExplorerClient(cfg.ExplorerURL),
		DB:        bonddb.NewRedeemerDBClient(dbConn),
		Ticker:    ticker.New(dispenseInterval),
		NetParams: cfg.netParams(),
	})
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	waitForInterrupt()

	return nil
}

// waitForInterrupt blocks until SIGINT or SIGTERM arrives.
func waitForInterrupt() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
}
