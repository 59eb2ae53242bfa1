package txbuilder

import (
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

// CreateRedeemScript builds a threshold-of-n multisig script over the keys in
// canonical order, independent of the order they are passed in.
func CreateRedeemScript(threshold int, pubKeys []*btcec.PublicKey) ([]byte, error) {
	if threshold < 1 || threshold > len(pubKeys) || len(pubKeys) > txscript.MaxPubKeysPerMultiSig {
		return nil, fmt.Errorf("invalid %d-of-%d multisig: %w", threshold, len(pubKeys), model.ErrInvalidArgument)
	}
	keys := slices.Clone(pubKeys)
	if slices.Contains(keys, nil) {
		return nil, fmt.Errorf("nil public key: %w", model.ErrInvalidArgument)
	}
	SortPubKeys(keys)

	builder := txscript.NewScriptBuilder().AddInt64(int64(threshold))
	for _, key := range keys {
		builder.AddData(key.SerializeCompressed())
	}
	builder.AddInt64(int64(len(keys))).AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// CreateP2SHOutputScript returns the P2SH locking script of the multisig redeem script.
func CreateP2SHOutputScript(threshold int, pubKeys []*btcec.PublicKey) ([]byte, error) {
	redeemScript, err := CreateRedeemScript(threshold, pubKeys)
	if err != nil {
		return nil, err
	}
	return P2SHOutputScript(redeemScript)
}

// P2SHOutputScript wraps the hash of redeemScript into a P2SH locking script.
func P2SHOutputScript(redeemScript []byte) ([]byte, error) {
	if len(redeemScript) == 0 {
		return nil, fmt.Errorf("empty redeem script: %w", model.ErrInvalidArgument)
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
}
