package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

const (
	// SatoshisPerByte is the static fee rate applied to estimated sizes.
	SatoshisPerByte = 30

	// maxFeePerByte caps the realized fee relative to the serialized size.
	maxFeePerByte = 750
)

// EstimateSize returns the estimated serialized size in bytes of a transaction
// with the given numbers of regular and P2SH outputs and inputs.
func EstimateSize(outputsRegular, outputsP2SH, inputsRegular, inputsP2SH int) int {
	return 10 + outputsRegular*34 + outputsP2SH*32 + inputsRegular*148 + inputsP2SH*259
}

// CalcFee returns the fee for an estimated transaction size.
func CalcFee(outputsRegular, outputsP2SH, inputsRegular, inputsP2SH int) btcutil.Amount {
	return btcutil.Amount(EstimateSize(outputsRegular, outputsP2SH, inputsRegular, inputsP2SH) * SatoshisPerByte)
}

// CalcFeeForTx estimates the fee of an assembled transaction. Inputs count as P2SH
// when their connected output is P2SH; inputs unknown to prevOuts count as regular.
func CalcFeeForTx(tx *wire.MsgTx, prevOuts txscript.PrevOutputFetcher) btcutil.Amount {
	var outReg, outP2SH, inReg, inP2SH int
	for _, out := range tx.TxOut {
		if txscript.IsPayToScriptHash(out.PkScript) {
			outP2SH++
		} else {
			outReg++
		}
	}
	for _, in := range tx.TxIn {
		var prev *wire.TxOut
		if prevOuts != nil {
			prev = prevOuts.FetchPrevOutput(in.PreviousOutPoint)
		}
		if prev != nil && txscript.IsPayToScriptHash(prev.PkScript) {
			inP2SH++
		} else {
			inReg++
		}
	}
	return CalcFee(outReg, outP2SH, inReg, inP2SH)
}

// isDust reports whether an output of the given value and script would be rejected as dust.
func isDust(value btcutil.Amount, pkScript []byte) bool {
	return mempool.IsDust(wire.NewTxOut(int64(value), pkScript), mempool.DefaultMinRelayTxFee)
}

// checkFee rejects transactions paying more than maxFeePerByte per serialized byte.
func checkFee(tx *wire.MsgTx, totalIn btcutil.Amount) (btcutil.Amount, error) {
	var totalOut btcutil.Amount
	for _, out := range tx.TxOut {
		totalOut += btcutil.Amount(out.Value)
	}
	fee := totalIn - totalOut
	maxFee := btcutil.Amount(tx.SerializeSize() * maxFeePerByte)
	if fee > maxFee {
		return 0, fmt.Errorf("fee failsafe: fee %d exceeds %d: %w", fee, maxFee, model.ErrTxConstruction)
	}
	return fee, nil
}
