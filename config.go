package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogFilename = "bondmint.log"
	defaultLogLevel    = "info"

	defaultSellerListen   = "127.0.0.1:9001"
	defaultRedeemerListen = "127.0.0.1:9002"
)

var (
	bondmintHomeDir = btcutil.AppDataDir("bondmint", false)

	defaultDataDir = filepath.Join(bondmintHomeDir, "data")
	defaultRPCDir  = filepath.Join(bondmintHomeDir, "rpc")
	defaultLogDir  = filepath.Join(bondmintHomeDir, "logs")
)

// config houses the daemon's configuration. Every field maps to a command
// line flag; defaults target a mainnet deployment under the home
// directory.
type config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	DataDir string `short:"b" long:"datadir" description:"The directory holding databases and key material"`
	RPCDir  string `long:"rpcdir" description:"The directory holding the per-service RPC sockets"`
	LogDir  string `long:"logdir" description:"Directory to log output"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	TestNet3 bool `long:"testnet" description:"Use the test network"`
	SimNet   bool `long:"simnet" description:"Use the simulation test network"`

	Service string `long:"service" description:"Run a single named service instead of the supervisor"`
	GenKeys bool   `long:"genkeys" description:"Provision key material and databases, then exit"`

	SellerListen   string `long:"sellerlisten" description:"Listen address of the seller HTTP front end"`
	RedeemerListen string `long:"redeemerlisten" description:"Listen address of the redeemer HTTP front end"`

	ExplorerURL string `long:"explorerurl" description:"Base URL of the block explorer backend"`

	NoPrivDrop bool `long:"noprivdrop" description:"Spawn services under the current user instead of dedicated uids (development only)"`
}

// loadConfig parses the command line, applies defaults, normalizes paths
// and initializes the logging infrastructure. Most other packages assume
// this ran first.
func loadConfig() (*config, error) {
	cfg := config{
		DataDir:        defaultDataDir,
		RPCDir:         defaultRPCDir,
		LogDir:         defaultLogDir,
		DebugLevel:     defaultLogLevel,
		SellerListen:   defaultSellerListen,
		RedeemerListen: defaultRedeemerListen,
	}

	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	if cfg.TestNet3 && cfg.SimNet {
		return nil, fmt.Errorf("testnet and simnet are mutually " +
			"exclusive")
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.RPCDir = cleanAndExpandPath(cfg.RPCDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.Service != "" {
		if _, ok := serviceTable[cfg.Service]; !ok {
			return nil, fmt.Errorf("unknown service %q",
				cfg.Service)
		}
	}

	// One log file per process; services log next to the supervisor,
	// tagged by name.
	logLeaf := defaultLogFilename
	if cfg.Service != "" {
		logLeaf = strings.ToLower(cfg.Service) + ".log"
	}
	initLogRotator(filepath.Join(cfg.LogDir, logLeaf))

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// netParams returns the chain parameters selected by the configuration.
func (c *config) netParams() *chaincfg.Params {
	switch {
	case c.TestNet3:
		return &chaincfg.TestNet3Params
	case c.SimNet:
		return &chaincfg.SimNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// dataFile returns the path of a file inside one of the per-resource data
// directories.
func (c *config) dataFile(resource, leaf string) string {
	return filepath.Join(c.DataDir, resource, leaf)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := ""
		if u, err := user.Current(); err == nil {
			homeDir = u.HomeDir
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
