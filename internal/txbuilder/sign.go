package txbuilder

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

// Sign fully signs every input as a P2PKH spend of key, setting each
// signature script to <sig> <pubkey>.
func (b *Builder) Sign(tx *wire.MsgTx, key *btcec.PrivateKey) (err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("sign", err, started)
	}()

	if tx == nil || key == nil {
		return fmt.Errorf("transaction and key are required: %w", model.ErrInvalidArgument)
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), b.params)
	if err != nil {
		return fmt.Errorf("key address: %w", err)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return fmt.Errorf("key script: %w", err)
	}

	scripts := make([][]byte, len(tx.TxIn))
	for i := range tx.TxIn {
		scripts[i], err = txscript.SignatureScript(tx, i, pkScript, txscript.SigHashAll, key, true)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}
	}
	for i, script := range scripts {
		tx.TxIn[i].SignatureScript = script
	}
	b.logger.Debug("transaction signed", zap.String("signer", addr.EncodeAddress()), zap.Int("inputs", len(scripts)))
	return nil
}

// PartiallySign returns one detached signature per input over redeemScript.
// The transaction is not modified.
func (b *Builder) PartiallySign(tx *wire.MsgTx, redeemScript []byte, key *btcec.PrivateKey) (sigs [][]byte, err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("partially_sign", err, started)
	}()

	if tx == nil {
		return nil, fmt.Errorf("transaction is required: %w", model.ErrInvalidArgument)
	}
	redeemScripts := make([][]byte, len(tx.TxIn))
	for i := range redeemScripts {
		redeemScripts[i] = redeemScript
	}
	return b.signEach(tx, redeemScripts, key)
}

// PartiallySignEach is PartiallySign with a separate redeem script for every input.
func (b *Builder) PartiallySignEach(tx *wire.MsgTx, redeemScripts [][]byte, key *btcec.PrivateKey) (sigs [][]byte, err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("partially_sign_each", err, started)
	}()

	if tx == nil {
		return nil, fmt.Errorf("transaction is required: %w", model.ErrInvalidArgument)
	}
	if len(redeemScripts) != len(tx.TxIn) {
		return nil, fmt.Errorf("got %d redeem scripts for %d inputs: %w", len(redeemScripts), len(tx.TxIn), model.ErrInvalidArgument)
	}
	return b.signEach(tx, redeemScripts, key)
}

func (b *Builder) signEach(tx *wire.MsgTx, redeemScripts [][]byte, key *btcec.PrivateKey) ([][]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("key is required: %w", model.ErrInvalidArgument)
	}
	sigs := make([][]byte, len(tx.TxIn))
	for i := range tx.TxIn {
		if len(redeemScripts[i]) == 0 {
			return nil, fmt.Errorf("empty redeem script for input %d: %w", i, model.ErrInvalidArgument)
		}
		sig, err := txscript.RawTxInSignature(tx, i, redeemScripts[i], txscript.SigHashAll, key)
		if err != nil {
			return nil, fmt.Errorf("sign input %d: %w", i, err)
		}
		sigs[i] = sig
		b.logger.Debug("partially signed input",
			zap.Int("input", i),
			zap.Stringer("outpoint", tx.TxIn[i].PreviousOutPoint),
		)
	}
	return sigs, nil
}

// ApplySignatures sets a 2-of-2 P2SH signature script on every input from the
// two signature sets. aFirst puts sigsA before sigsB, which must match the key
// order of the redeem script. It reports false, leaving tx untouched, when a
// signature set does not match the input count.
func (b *Builder) ApplySignatures(tx *wire.MsgTx, redeemScript []byte, sigsA, sigsB [][]byte, aFirst bool) bool {
	if tx == nil || len(sigsA) != len(tx.TxIn) || len(sigsB) != len(tx.TxIn) {
		return false
	}
	scripts := make([][]byte, len(tx.TxIn))
	for i := range tx.TxIn {
		first, second := sigsA[i], sigsB[i]
		if !aFirst {
			first, second = second, first
		}
		script, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(first).
			AddData(second).
			AddData(redeemScript).
			Script()
		if err != nil {
			b.logger.Warn("build multisig signature script", zap.Int("input", i), zap.Error(err))
			return false
		}
		scripts[i] = script
	}
	for i, script := range scripts {
		tx.TxIn[i].SignatureScript = script
	}
	return true
}

// ClientFirst reports whether clientKey is the first of keys, i.e. whether the
// client signature goes first in a multisig signature script.
func ClientFirst(keys []*btcec.PublicKey, clientKey *btcec.PublicKey) bool {
	return len(keys) > 0 && clientKey != nil && keys[0].IsEqual(clientKey)
}
