package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	bip39 "github.com/tyler-smith/go-bip39"

	"github.com/bondmint/bondmint/bonddb"
	"github.com/bondmint/bondmint/chainio"
)

// rsaKeyBits is the modulus size of both the signing and OAEP keys.
const rsaKeyBits = 4096

// genKeys provisions everything a fresh mint needs: the per-resource data
// directory layout, the two RSA keys, the deterministic wallet root, the
// dispenser and mixing wallets, and the two empty databases. Existing
// material is never overwritten.
func genKeys(cfg *config) error {
	for _, resource := range []string{
		resSigningPrivKey, resSigningPubKey, resOAEPKey,
		resMasterPrivKey, resMasterPubKey,
		resDispenserPrivKey, resDispenserAddress, resMixinAddress,
		resSellerDatabase, resRedeemerDatabase,
	} {
		dir := filepath.Join(cfg.DataDir, resource)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	if err := genSigningKeys(cfg); err != nil {
		return err
	}
	if err := genWalletKeys(cfg); err != nil {
		return err
	}

	// Opening the databases once creates their schemas.
	sellerDB, err := bonddb.OpenSellerDB(
		cfg.dataFile(resSellerDatabase, ""),
	)
	if err != nil {
		return err
	}
	sellerDB.Close()

	redeemerDB, err := bonddb.OpenRedeemerDB(
		cfg.dataFile(resRedeemerDatabase, ""),
	)
	if err != nil {
		return err
	}
	redeemerDB.Close()

	bmntLog.Infof("Key material and databases ready under %s",
		cfg.DataDir)

	return nil
}

// genSigningKeys creates the 4096-bit signing keypair and the dedicated
// OAEP keypair. The OAEP private key is deliberately distributed as
// public material: it backs the all-or-nothing padding, not
// confidentiality, and it must never be the signing key itself.
func genSigningKeys(cfg *config) error {
	signPath := cfg.dataFile(resSigningPrivKey, resSigningPrivKey+".pem")
	if !fileExists(signPath) {
		bmntLog.Infof("Generating %d-bit signing key", rsaKeyBits)
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return err
		}

		err = writePEM(signPath, "RSA PRIVATE KEY",
			x509.MarshalPKCS1PrivateKey(key), 0600)
		if err != nil {
			return err
		}

		pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			return err
		}
		err = writePEM(
			cfg.dataFile(resSigningPubKey, resSigningPubKey+".pem"),
			"PUBLIC KEY", pubDER, 0644,
		)
		if err != nil {
			return err
		}
	}

	oaepPath := cfg.dataFile(resOAEPKey, resOAEPKey+".pem")
	if !fileExists(oaepPath) {
		bmntLog.Infof("Generating %d-bit oaep key", rsaKeyBits)
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return err
		}

		err = writePEM(oaepPath, "RSA PRIVATE KEY",
			x509.MarshalPKCS1PrivateKey(key), 0644)
		if err != nil {
			return err
		}
	}

	return nil
}

// genWalletKeys creates the deterministic wallet root from a bip39
// mnemonic, plus the standalone dispenser and mixing wallets. The
// mnemonic is stored alongside the master key so operators can restore
// the wallet elsewhere.
func genWalletKeys(cfg *config) error {
	masterPath := cfg.dataFile(resMasterPrivKey, resMasterPrivKey+".hex")
	if !fileExists(masterPath) {
		entropy, err := bip39.NewEntropy(256)
		if err != nil {
			return err
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return err
		}

		seed := bip39.NewSeed(mnemonic, "")
		masterKey := keyFromSeed(seed)

		err = writeFile(masterPath,
			hex.EncodeToString(masterKey.Serialize())+"\n", 0600)
		if err != nil {
			return err
		}
		err = writeFile(
			cfg.dataFile(resMasterPrivKey, "seed_mnemonic.txt"),
			mnemonic+"\n", 0600,
		)
		if err != nil {
			return err
		}

		mpk := chainio.NewMasterPubKey(
			masterKey.PubKey(), cfg.netParams(),
		)
		err = writeFile(
			cfg.dataFile(resMasterPubKey, resMasterPubKey+".hex"),
			hex.EncodeToString(mpk.Serialize())+"\n", 0644,
		)
		if err != nil {
			return err
		}
	}

	err := genSimpleWallet(
		cfg, resDispenserPrivKey,
		cfg.dataFile(resDispenserAddress, resDispenserAddress+".txt"),
	)
	if err != nil {
		return err
	}

	// The mixing wallet's key lives next to its address; a production
	// deployment would hold this key entirely outside the mint.
	return genSimpleWallet(
		cfg, resMixinAddress,
		cfg.dataFile(resMixinAddress, resMixinAddress+".txt"),
	)
}

// genSimpleWallet creates one non-deterministic key and its address file.
func genSimpleWallet(cfg *config, keyResource, addrPath string) error {
	keyPath := cfg.dataFile(keyResource, keyResource+".hex")
	if fileExists(keyPath) {
		return nil
	}

	key, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}

	addr, err := chainio.PrivKeyAddress(key, cfg.netParams())
	if err != nil {
		return err
	}

	err = writeFile(keyPath,
		hex.EncodeToString(key.Serialize())+"\n", 0600)
	if err != nil {
		return err
	}

	return writeFile(addrPath, addr.EncodeAddress()+"\n", 0644)
}

// keyFromSeed maps a bip39 seed onto a secp256k1 scalar.
func keyFromSeed(seed []byte) *btcec.PrivateKey {
	digest := sha256.Sum256(seed)

	scalar := new(big.Int).SetBytes(digest[:])
	scalar.Mod(scalar, btcec.S256().N)

	priv, _ := btcec.PrivKeyFromBytes(
		scalar.FillBytes(make([]byte, 32)),
	)
	return priv
}

// writePEM writes one PEM block to path.
func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	block := &pem.Block{Type: blockType, Bytes: der}
	return writeFile(path, string(pem.EncodeToMemory(block)), mode)
}

// writeFile writes content to path, refusing to clobber existing files.
func writeFile(path, content string, mode os.FileMode) error {
	if fileExists(path) {
		return fmt.Errorf("%s already exists", path)
	}

	return os.WriteFile(path, []byte(content), mode)
}
