package chainio

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// The deterministic wallet is the electrum v1 scheme: a child public key is
// the master public key plus H(index || ":0:" || master) * G, so per-sale
// addresses derive from public material alone while the matching private
// keys stay offline with the collector. Unlike BIP32 this scheme accepts
// arbitrarily large child indices, which the mint relies on: sale indices
// are 128-bit random values so that addresses are unlinkable on chain.
//
// The flip side, inherited with the scheme, is that leaking any single
// child private key together with the master public key reveals the master
// private key. Child keys therefore live only inside the collector for the
// moment of signing a sweep.

// MasterPubKey is the public half of the deterministic wallet. It derives
// per-sale addresses and is safe to hand to every quoting component.
type MasterPubKey struct {
	pub    *btcec.PublicKey
	params *chaincfg.Params
}

// NewMasterPubKey wraps a secp256k1 public key as a deterministic wallet
// root on the given network.
func NewMasterPubKey(pub *btcec.PublicKey,
	params *chaincfg.Params) *MasterPubKey {

	return &MasterPubKey{pub: pub, params: params}
}

// ParseMasterPubKey parses the 65-byte uncompressed serialization produced
// by Serialize.
func ParseMasterPubKey(raw []byte,
	params *chaincfg.Params) (*MasterPubKey, error) {

	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("chainio: bad master pubkey: %v", err)
	}

	return NewMasterPubKey(pub, params), nil
}

// Serialize returns the uncompressed 65-byte form of the master key.
func (m *MasterPubKey) Serialize() []byte {
	return m.pub.SerializeUncompressed()
}

// childOffset computes the scalar H(index:0:mpk) that separates a child
// key from the master. The hash is double-SHA256 over the decimal index,
// the change marker (always 0, the mint derives no change chain) and the
// raw 64-byte master key.
func (m *MasterPubKey) childOffset(index *big.Int) *big.Int {
	payload := []byte(index.Text(10) + ":0:")
	payload = append(payload, m.pub.SerializeUncompressed()[1:]...)

	offset := new(big.Int).SetBytes(chainhash.DoubleHashB(payload))
	return offset.Mod(offset, btcec.S256().N)
}

// ChildPubKey derives the public key at the given index.
func (m *MasterPubKey) ChildPubKey(index *big.Int) (*btcec.PublicKey, error) {
	offset := m.childOffset(index)

	curve := btcec.S256()
	offX, offY := curve.ScalarBaseMult(offset.Bytes())
	childX, childY := curve.Add(m.pub.X(), m.pub.Y(), offX, offY)

	var raw []byte
	raw = append(raw, 0x04)
	raw = append(raw, leftPad32(childX)...)
	raw = append(raw, leftPad32(childY)...)

	return btcec.ParsePubKey(raw)
}

// ChildAddress derives the pay-to-pubkey-hash address at the given index.
// Addresses hash the uncompressed child key, matching the historical
// wallet.
func (m *MasterPubKey) ChildAddress(index *big.Int) (btcutil.Address, error) {
	pub, err := m.ChildPubKey(index)
	if err != nil {
		return nil, err
	}

	return btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(pub.SerializeUncompressed()), m.params,
	)
}

// MasterPrivKey is the private half of the deterministic wallet, held only
// by the collector.
type MasterPrivKey struct {
	priv *btcec.PrivateKey
	pub  *MasterPubKey
}

// NewMasterPrivKey wraps a secp256k1 private key as the wallet root.
func NewMasterPrivKey(priv *btcec.PrivateKey,
	params *chaincfg.Params) *MasterPrivKey {

	return &MasterPrivKey{
		priv: priv,
		pub:  NewMasterPubKey(priv.PubKey(), params),
	}
}

// PubKey returns the matching master public key.
func (m *MasterPrivKey) PubKey() *MasterPubKey {
	return m.pub
}

// ChildPrivKey derives the private key at the given index:
// child = master + H(index:0:mpk) mod n.
func (m *MasterPrivKey) ChildPrivKey(index *big.Int) (*btcec.PrivateKey,
	error) {

	offset := m.pub.childOffset(index)

	scalar := new(big.Int).SetBytes(m.priv.Serialize())
	scalar.Add(scalar, offset)
	scalar.Mod(scalar, btcec.S256().N)
	if scalar.Sign() == 0 {
		return nil, fmt.Errorf("chainio: degenerate child key")
	}

	priv, _ := btcec.PrivKeyFromBytes(leftPad32(scalar))
	return priv, nil
}

// ChildAddress derives the address at the given index from the private
// root. The result always equals the public-side derivation.
func (m *MasterPrivKey) ChildAddress(index *big.Int) (btcutil.Address,
	error) {

	return m.pub.ChildAddress(index)
}

// PrivKeyAddress returns the uncompressed P2PKH address of a bare private
// key, used for the dispenser wallet which is not deterministic.
func PrivKeyAddress(priv *btcec.PrivateKey,
	params *chaincfg.Params) (btcutil.Address, error) {

	return btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeUncompressed()), params,
	)
}

// leftPad32 renders z as exactly 32 big-endian bytes.
func leftPad32(z *big.Int) []byte {
	return z.FillBytes(make([]byte, 32))
}
