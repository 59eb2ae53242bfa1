package txbuilder

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

// VerifyTxSimple checks the structural sanity of tx without looking at its inputs' scripts.
func (b *Builder) VerifyTxSimple(tx *wire.MsgTx) (err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("verify_tx_simple", err, started)
	}()
	return b.checkSanity(tx)
}

// VerifyTxFull checks structural sanity and executes every input script against
// its connected output from prevOuts.
func (b *Builder) VerifyTxFull(tx *wire.MsgTx, prevOuts txscript.PrevOutputFetcher) (err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("verify_tx_full", err, started)
	}()

	if err := b.checkSanity(tx); err != nil {
		return err
	}
	if prevOuts == nil {
		return fmt.Errorf("previous outputs are required: %w", model.ErrInvalidArgument)
	}

	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	for i, in := range tx.TxIn {
		prev := prevOuts.FetchPrevOutput(in.PreviousOutPoint)
		if prev == nil {
			return fmt.Errorf("input %d: missing previous output %s: %w", i, in.PreviousOutPoint, model.ErrVerification)
		}
		vm, err := txscript.NewEngine(prev.PkScript, tx, i, txscript.StandardVerifyFlags, nil, sigHashes, prev.Value, prevOuts)
		if err == nil {
			err = vm.Execute()
		}
		if err != nil {
			b.logger.Warn("input verification failed",
				zap.String("txid", tx.TxHash().String()),
				zap.Int("input", i),
				zap.Error(err),
			)
			return fmt.Errorf("input %d: %w: %w", i, model.ErrVerification, err)
		}
	}
	return nil
}

func (b *Builder) checkSanity(tx *wire.MsgTx) error {
	if tx == nil {
		return fmt.Errorf("transaction is required: %w", model.ErrInvalidArgument)
	}
	if err := blockchain.CheckTransactionSanity(btcutil.NewTx(tx)); err != nil {
		b.logger.Warn("transaction sanity check failed", zap.String("txid", tx.TxHash().String()), zap.Error(err))
		return fmt.Errorf("%w: %w", model.ErrVerification, err)
	}
	return nil
}
