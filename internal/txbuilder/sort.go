package txbuilder

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// CompareInputs orders inputs by outpoint hash, then by outpoint index.
// Hashes compare in display (big-endian) byte order.
func CompareInputs(a, b *wire.TxIn) int {
	if c := compareHashes(&a.PreviousOutPoint.Hash, &b.PreviousOutPoint.Hash); c != 0 {
		return c
	}
	return cmp.Compare(a.PreviousOutPoint.Index, b.PreviousOutPoint.Index)
}

func compareHashes(a, b *chainhash.Hash) int {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// CompareOutputs orders outputs by their serialized bytes, a shorter prefix first.
func CompareOutputs(a, b *wire.TxOut) int {
	return bytes.Compare(serializeTxOut(a), serializeTxOut(b))
}

func serializeTxOut(out *wire.TxOut) []byte {
	var buf bytes.Buffer
	buf.Grow(out.SerializeSize())
	// bytes.Buffer writes do not fail.
	_ = wire.WriteTxOut(&buf, 0, wire.TxVersion, out)
	return buf.Bytes()
}

// ComparePubKeys orders public keys by their compressed serialization.
func ComparePubKeys(a, b *btcec.PublicKey) int {
	return bytes.Compare(a.SerializeCompressed(), b.SerializeCompressed())
}

// SortInputs sorts inputs in place into canonical order.
func SortInputs(inputs []*wire.TxIn) {
	slices.SortStableFunc(inputs, CompareInputs)
}

// SortOutputs sorts outputs in place into canonical order.
func SortOutputs(outputs []*wire.TxOut) {
	slices.SortStableFunc(outputs, CompareOutputs)
}

// SortPubKeys sorts keys in place into canonical order.
func SortPubKeys(keys []*btcec.PublicKey) {
	slices.SortStableFunc(keys, ComparePubKeys)
}
