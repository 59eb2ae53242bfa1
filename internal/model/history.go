package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

const historyTimeLayout = "02-01-2006 15:04:05"

// PayInHistory records a confirmed incoming payment from the bitcoin network.
type PayInHistory struct {
	Timestamp time.Time
	Amount    btcutil.Amount
}

// AmountString renders the amount as a decimal BTC string with the unit suffix, e.g. "0.5BTC".
func (h PayInHistory) AmountString() string {
	return FormatBTC(h.Amount) + btcutil.AmountBTC.String()
}

func (h PayInHistory) String() string {
	return h.Timestamp.Format(historyTimeLayout) + "\nPayIn Transaction from BTC Network: " + FormatBTC(h.Amount) + " BTC"
}

// FormatBTC formats satoshis as BTC with up to eight decimals and no trailing zeros.
func FormatBTC(amount btcutil.Amount) string {
	sign := ""
	v := int64(amount)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / btcutil.SatoshiPerBitcoin
	frac := v % btcutil.SatoshiPerBitcoin
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	return fmt.Sprintf("%s%d.%s", sign, whole, strings.TrimRight(fmt.Sprintf("%08d", frac), "0"))
}
