package blindsig

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadRSAPrivateKey reads a PEM-encoded PKCS#1 or PKCS#8 RSA private key
// from path.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("blindsig: unable to parse %s: %v",
			path, err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("blindsig: %s is not an RSA key", path)
	}

	return key, nil
}

// LoadRSAPublicKey reads a PEM-encoded PKIX RSA public key from path.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("blindsig: unable to parse %s: %v",
			path, err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("blindsig: %s is not an RSA key", path)
	}

	return pub, nil
}

// LoadParams assembles validated mint parameters from the signing public
// key and the OAEP keypair files, the form both are distributed in.
func LoadParams(signingPubPath, oaepKeyPath string) (*Params, error) {
	pub, err := LoadRSAPublicKey(signingPubPath)
	if err != nil {
		return nil, err
	}

	oaepKey, err := LoadRSAPrivateKey(oaepKeyPath)
	if err != nil {
		return nil, err
	}

	params := NewParams(pub.N, pub.E, oaepKey)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return params, nil
}

func readPEM(path string) (*pem.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("blindsig: no PEM block in %s", path)
	}

	return block, nil
}
