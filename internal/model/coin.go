package model

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Coin references a spendable output by outpoint together with the value it carries.
// The value is supplied by the caller; the builder never looks it up.
type Coin struct {
	OutPoint wire.OutPoint
	Amount   btcutil.Amount
}

// FundingOutput is a prior transaction output connected to the outpoint that spends it.
type FundingOutput struct {
	OutPoint wire.OutPoint
	TxOut    *wire.TxOut
}

// Amount returns the value of the connected output.
func (o FundingOutput) Amount() btcutil.Amount {
	if o.TxOut == nil {
		return 0
	}
	return btcutil.Amount(o.TxOut.Value)
}

// AmountFromBTC converts a positive BTC value to satoshis.
func AmountFromBTC(value float64) (btcutil.Amount, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return 0, fmt.Errorf("amount %v: %w: %w", value, err, ErrInvalidArgument)
	}
	if amt <= 0 || amt > btcutil.MaxSatoshi {
		return 0, fmt.Errorf("amount %v out of range: %w", value, ErrInvalidArgument)
	}
	return amt, nil
}
