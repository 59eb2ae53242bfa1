package txbuilder

import (
	"github.com/btcsuite/btcd/txscript"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

// PrevOutputFetcher indexes funding outputs by outpoint for signing and verification.
func PrevOutputFetcher(outputs []model.FundingOutput) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, out := range outputs {
		if out.TxOut != nil {
			fetcher.AddPrevOut(out.OutPoint, out.TxOut)
		}
	}
	return fetcher
}
