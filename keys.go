package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/bondmint/bondmint/blindsig"
	"github.com/bondmint/bondmint/chainio"
)

// Key material lives in one directory per resource so the supervisor can
// grant access per-principal through directory ownership alone.
const (
	resSigningPrivKey    = "signing_private_key"
	resSigningPubKey     = "signing_public_key"
	resOAEPKey           = "oaep_key"
	resMasterPrivKey     = "collector_master_private_key"
	resMasterPubKey      = "collector_master_public_key"
	resDispenserPrivKey  = "dispenser_private_key"
	resDispenserAddress  = "dispenser_address"
	resMixinAddress      = "mixin_address"
	resSellerDatabase    = "seller_database"
	resRedeemerDatabase  = "redeemer_database"
)

// loadSigParams assembles the public blind-signature parameters from the
// signing public key and the OAEP keypair. Every component except Sign
// works from these alone.
func loadSigParams(cfg *config) (*blindsig.Params, error) {
	return blindsig.LoadParams(
		cfg.dataFile(resSigningPubKey, resSigningPubKey+".pem"),
		cfg.dataFile(resOAEPKey, resOAEPKey+".pem"),
	)
}

// loadMasterPubKey reads the deterministic wallet's public root.
func loadMasterPubKey(cfg *config) (*chainio.MasterPubKey, error) {
	raw, err := readHexFile(
		cfg.dataFile(resMasterPubKey, resMasterPubKey+".hex"),
	)
	if err != nil {
		return nil, err
	}

	return chainio.ParseMasterPubKey(raw, cfg.netParams())
}

// loadMasterPrivKey reads the deterministic wallet's private root. Only
// the collector calls this.
func loadMasterPrivKey(cfg *config) (*chainio.MasterPrivKey, error) {
	priv, err := loadHexPrivKey(
		cfg.dataFile(resMasterPrivKey, resMasterPrivKey+".hex"),
	)
	if err != nil {
		return nil, err
	}

	return chainio.NewMasterPrivKey(priv, cfg.netParams()), nil
}

// loadDispenserKey reads the dispenser wallet key. Only the dispenser
// calls this.
func loadDispenserKey(cfg *config) (*btcec.PrivateKey, error) {
	return loadHexPrivKey(
		cfg.dataFile(resDispenserPrivKey, resDispenserPrivKey+".hex"),
	)
}

// loadAddressFile reads and parses a stored address against the active
// network.
func loadAddressFile(cfg *config, resource string) (btcutil.Address, error) {
	raw, err := os.ReadFile(cfg.dataFile(resource, resource+".txt"))
	if err != nil {
		return nil, err
	}

	return btcutil.DecodeAddress(
		strings.TrimSpace(string(raw)), cfg.netParams(),
	)
}

// loadHexPrivKey reads a hex-encoded secp256k1 private key.
func loadHexPrivKey(path string) (*btcec.PrivateKey, error) {
	raw, err := readHexFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%s: expected 32 key bytes, got %d",
			path, len(raw))
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// readHexFile reads a whole file as whitespace-trimmed hex.
func readHexFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return hex.DecodeString(strings.TrimSpace(string(raw)))
}
