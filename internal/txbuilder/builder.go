// Package txbuilder assembles deterministic spend and refund transactions,
// signs them and combines detached signatures.
package txbuilder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/model"
	"github.com/goodnatureofminers/custody-core/pkg/safe"
)

// Builder creates transactions for a fixed network. It keeps no per-call state
// and is safe for concurrent use on distinct transactions.
type Builder struct {
	params  *chaincfg.Params
	logger  *zap.Logger
	metrics Metrics
}

// NewBuilder constructs a Builder.
func NewBuilder(params *chaincfg.Params, logger *zap.Logger, metrics Metrics) (*Builder, error) {
	if params == nil {
		return nil, fmt.Errorf("chain params are required: %w", model.ErrInvalidArgument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Builder{
		params:  params,
		logger:  logger.Named("txbuilder").With(zap.String("network", params.Name)),
		metrics: metrics,
	}, nil
}

// CreateTx spends the funding outputs to toAddr, returning change to changeAddr.
// When senderPaysFee is false the fee is taken from the spent amount.
func (b *Builder) CreateTx(outputs []model.FundingOutput, changeAddr, toAddr btcutil.Address,
	amount btcutil.Amount, senderPaysFee bool) (tx *wire.MsgTx, err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("create_tx", err, started)
	}()

	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d: %w", amount, model.ErrInvalidArgument)
	}
	tx = wire.NewMsgTx(wire.TxVersion)
	total, inReg, inP2SH, err := addFundingInputs(tx, outputs)
	if err != nil {
		return nil, err
	}
	SortInputs(tx.TxIn)

	return b.createTxOutputs("create_tx", tx, total, inReg, inP2SH, changeAddr, toAddr, amount, senderPaysFee)
}

// CreateTxFromCoins spends coins locked by redeemScript. Every input is P2SH and
// carries the redeem script as a placeholder signature script.
func (b *Builder) CreateTxFromCoins(coins []model.Coin, redeemScript []byte, changeAddr, toAddr btcutil.Address,
	amount btcutil.Amount, senderPaysFee bool) (tx *wire.MsgTx, err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("create_tx_from_coins", err, started)
	}()

	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d: %w", amount, model.ErrInvalidArgument)
	}
	tx = wire.NewMsgTx(wire.TxVersion)
	total, err := addCoinInputs(tx, coins, redeemScript)
	if err != nil {
		return nil, err
	}
	SortInputs(tx.TxIn)

	return b.createTxOutputs("create_tx_from_coins", tx, total, 0, len(coins), changeAddr, toAddr, amount, senderPaysFee)
}

// CreateTxFromOwnedOutputs spends only the outputs paying to one of ownAddrs.
// The sender pays the fee. A dust amount is rejected, dust change is left to the fee.
func (b *Builder) CreateTxFromOwnedOutputs(outputs []model.FundingOutput, ownAddrs []btcutil.Address,
	changeAddr, toAddr btcutil.Address, amount btcutil.Amount) (tx *wire.MsgTx, err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("create_tx_from_owned_outputs", err, started)
	}()

	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d: %w", amount, model.ErrInvalidArgument)
	}
	toScript, toP2SH, err := addressScript(toAddr)
	if err != nil {
		return nil, fmt.Errorf("destination address: %w", err)
	}
	if isDust(amount, toScript) {
		return nil, fmt.Errorf("amount %d is dust: %w", amount, model.ErrTxConstruction)
	}
	changeScript, changeP2SH, err := addressScript(changeAddr)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}

	own := make(map[string]struct{}, len(ownAddrs))
	for _, addr := range ownAddrs {
		if addr != nil {
			own[addr.EncodeAddress()] = struct{}{}
		}
	}
	owned := make([]model.FundingOutput, 0, len(outputs))
	for _, out := range outputs {
		if out.TxOut == nil {
			continue
		}
		class, addrs, _, err := txscript.ExtractPkScriptAddrs(out.TxOut.PkScript, b.params)
		if err != nil || class != txscript.ScriptHashTy || len(addrs) != 1 {
			continue
		}
		if _, ok := own[addrs[0].EncodeAddress()]; ok {
			owned = append(owned, out)
		}
	}
	if len(owned) == 0 {
		return nil, fmt.Errorf("no outputs pay to the given addresses: %w", model.ErrInsufficientFunds)
	}

	tx = wire.NewMsgTx(wire.TxVersion)
	total, inReg, inP2SH, err := addFundingInputs(tx, owned)
	if err != nil {
		return nil, err
	}
	SortInputs(tx.TxIn)

	outReg, outP2SH := countOutput(0, 0, toP2SH)
	outReg, outP2SH = countOutput(outReg, outP2SH, changeP2SH)
	fee := CalcFee(outReg, outP2SH, inReg, inP2SH)
	change := total - amount - fee
	b.logger.Debug("owned outputs spend",
		zap.Int("inputs", len(owned)),
		zap.Int64("total", int64(total)),
		zap.Int64("amount", int64(amount)),
		zap.Int64("fee", int64(fee)),
		zap.Int64("change", int64(change)),
	)
	if change < 0 {
		return nil, fmt.Errorf("total %d does not cover %d plus fee %d: %w", total, amount, fee, model.ErrInsufficientFunds)
	}

	tx.AddTxOut(wire.NewTxOut(int64(amount), toScript))
	if !isDust(change, changeScript) {
		tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
	}
	return b.finalize("create_tx_from_owned_outputs", tx, total)
}

// CreateRefundTx pays every coin back to refundAddr once lockTime is reached.
// All sequence numbers are zero so the transaction lock time is enforced.
func (b *Builder) CreateRefundTx(coins []model.Coin, redeemScript []byte, refundAddr btcutil.Address,
	lockTime int64) (tx *wire.MsgTx, err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("create_refund_tx", err, started)
	}()

	txLockTime, err := safe.Uint32(lockTime)
	if err != nil {
		return nil, fmt.Errorf("lock time: %w: %w", err, model.ErrInvalidArgument)
	}
	refundScript, refundP2SH, err := addressScript(refundAddr)
	if err != nil {
		return nil, fmt.Errorf("refund address: %w", err)
	}

	tx = wire.NewMsgTx(wire.TxVersion)
	total, err := addCoinInputs(tx, coins, redeemScript)
	if err != nil {
		return nil, err
	}
	for _, in := range tx.TxIn {
		in.Sequence = 0
	}
	SortInputs(tx.TxIn)

	outReg, outP2SH := countOutput(0, 0, refundP2SH)
	fee := CalcFee(outReg, outP2SH, 0, len(coins))
	remaining := total - fee
	b.logger.Debug("refund fee", zap.Int64("fee", int64(fee)), zap.Int64("remaining", int64(remaining)))
	if remaining <= 0 || isDust(remaining, refundScript) {
		return nil, fmt.Errorf("refund of %d after fee %d is dust: %w", total, fee, model.ErrInsufficientFunds)
	}
	tx.AddTxOut(wire.NewTxOut(int64(remaining), refundScript))
	tx.LockTime = txLockTime

	return b.finalize("create_refund_tx", tx, total)
}

// CreateSpendAllTx sends the whole value of outputs, minus the fee, to toAddr.
func (b *Builder) CreateSpendAllTx(outputs []model.FundingOutput, toAddr btcutil.Address) (tx *wire.MsgTx, err error) {
	started := time.Now()
	defer func() {
		b.metrics.Observe("create_spend_all_tx", err, started)
	}()

	toScript, toP2SH, err := addressScript(toAddr)
	if err != nil {
		return nil, fmt.Errorf("destination address: %w", err)
	}
	tx = wire.NewMsgTx(wire.TxVersion)
	total, inReg, inP2SH, err := addFundingInputs(tx, outputs)
	if err != nil {
		return nil, err
	}
	SortInputs(tx.TxIn)

	outReg, outP2SH := countOutput(0, 0, toP2SH)
	if err := b.addSpendAll(tx, total, CalcFee(outReg, outP2SH, inReg, inP2SH), toScript); err != nil {
		return nil, err
	}
	return b.finalize("create_spend_all_tx", tx, total)
}

func (b *Builder) addSpendAll(tx *wire.MsgTx, total, fee btcutil.Amount, toScript []byte) error {
	spend := total - fee
	if spend <= 0 {
		return fmt.Errorf("amount %d does not cover fee %d: %w", total, fee, model.ErrTxConstruction)
	}
	if isDust(spend, toScript) {
		return fmt.Errorf("spend of %d after fee %d is dust: %w", total, fee, model.ErrTxConstruction)
	}
	tx.AddTxOut(wire.NewTxOut(int64(spend), toScript))
	return nil
}

func (b *Builder) createTxOutputs(operation string, tx *wire.MsgTx, total btcutil.Amount, inReg, inP2SH int,
	changeAddr, toAddr btcutil.Address, amount btcutil.Amount, senderPaysFee bool) (*wire.MsgTx, error) {
	if amount > total {
		return nil, fmt.Errorf("amount %d exceeds funds %d: %w", amount, total, model.ErrInsufficientFunds)
	}
	toScript, toP2SH, err := addressScript(toAddr)
	if err != nil {
		return nil, fmt.Errorf("destination address: %w", err)
	}
	outReg, outP2SH := countOutput(0, 0, toP2SH)
	feeOne := CalcFee(outReg, outP2SH, inReg, inP2SH)

	change := total - amount
	if change == 0 {
		// spending everything, the payer does not matter
		if err := b.addSpendAll(tx, total, feeOne, toScript); err != nil {
			return nil, err
		}
		return b.finalize(operation, tx, total)
	}

	changeScript, changeP2SH, err := addressScript(changeAddr)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}
	outReg, outP2SH = countOutput(outReg, outP2SH, changeP2SH)
	feeTwo := CalcFee(outReg, outP2SH, inReg, inP2SH)
	b.logger.Debug("fee options",
		zap.Int64("fee_one_output", int64(feeOne)),
		zap.Int64("fee_two_outputs", int64(feeTwo)),
		zap.Bool("sender_pays_fee", senderPaysFee),
	)

	if senderPaysFee {
		if isDust(amount, toScript) {
			return nil, fmt.Errorf("spend %d is dust: %w", amount, model.ErrTxConstruction)
		}
		changeTwo := change - feeTwo
		if changeTwo >= 0 && !isDust(changeTwo, changeScript) {
			tx.AddTxOut(wire.NewTxOut(int64(changeTwo), changeScript))
			tx.AddTxOut(wire.NewTxOut(int64(amount), toScript))
			return b.finalize(operation, tx, total)
		}
		// change too small, fall back to a single output
		spendOne := total - feeOne
		if spendOne < amount {
			return nil, fmt.Errorf("funds %d do not cover %d plus fee %d: %w", total, amount, feeOne, model.ErrInsufficientFunds)
		}
		tx.AddTxOut(wire.NewTxOut(int64(spendOne), toScript))
		return b.finalize(operation, tx, total)
	}

	spendTwo := amount - feeTwo
	if spendTwo < 0 {
		return nil, fmt.Errorf("cannot spend negative amount %d: %w", spendTwo, model.ErrTxConstruction)
	}
	switch {
	case !isDust(change, changeScript) && !isDust(spendTwo, toScript):
		tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
		tx.AddTxOut(wire.NewTxOut(int64(spendTwo), toScript))
	case !isDust(spendTwo, toScript):
		// fold the dust change into the spend so the fee stays exact
		spendOne := amount - feeOne + change
		if isDust(spendOne, toScript) {
			return nil, fmt.Errorf("spend %d is dust: %w", spendOne, model.ErrTxConstruction)
		}
		tx.AddTxOut(wire.NewTxOut(int64(spendOne), toScript))
	default:
		return nil, fmt.Errorf("change %d and spend %d are dust: %w", change, spendTwo, model.ErrTxConstruction)
	}
	return b.finalize(operation, tx, total)
}

// finalize sorts outputs, applies the fee failsafe and checks sanity.
func (b *Builder) finalize(operation string, tx *wire.MsgTx, total btcutil.Amount) (*wire.MsgTx, error) {
	SortOutputs(tx.TxOut)
	fee, err := checkFee(tx, total)
	if err != nil {
		return nil, err
	}
	if err := b.checkSanity(tx); err != nil {
		return nil, err
	}
	b.metrics.ObserveFee(operation, int64(fee), tx.SerializeSize())
	b.logger.Debug("transaction built",
		zap.String("operation", operation),
		zap.String("txid", tx.TxHash().String()),
		zap.Int("inputs", len(tx.TxIn)),
		zap.Int("outputs", len(tx.TxOut)),
		zap.Int64("fee", int64(fee)),
	)
	return tx, nil
}

func addFundingInputs(tx *wire.MsgTx, outputs []model.FundingOutput) (total btcutil.Amount, inReg, inP2SH int, err error) {
	if len(outputs) == 0 {
		return 0, 0, 0, fmt.Errorf("no funding outputs: %w", model.ErrInvalidArgument)
	}
	for _, out := range outputs {
		if out.TxOut == nil {
			return 0, 0, 0, fmt.Errorf("outpoint %s has no connected output: %w", out.OutPoint, model.ErrInvalidArgument)
		}
		if err := checkAmount(out.OutPoint, out.Amount()); err != nil {
			return 0, 0, 0, err
		}
		tx.AddTxIn(wire.NewTxIn(&out.OutPoint, nil, nil))
		if txscript.IsPayToScriptHash(out.TxOut.PkScript) {
			inP2SH++
		} else {
			inReg++
		}
		total += out.Amount()
	}
	if total > btcutil.MaxSatoshi {
		return 0, 0, 0, fmt.Errorf("total %d exceeds max supply: %w", total, model.ErrInvalidArgument)
	}
	return total, inReg, inP2SH, nil
}

func addCoinInputs(tx *wire.MsgTx, coins []model.Coin, redeemScript []byte) (btcutil.Amount, error) {
	if len(coins) == 0 {
		return 0, fmt.Errorf("no coins: %w", model.ErrInvalidArgument)
	}
	if len(redeemScript) == 0 {
		return 0, fmt.Errorf("empty redeem script: %w", model.ErrInvalidArgument)
	}
	var total btcutil.Amount
	for _, c := range coins {
		if err := checkAmount(c.OutPoint, c.Amount); err != nil {
			return 0, err
		}
		tx.AddTxIn(wire.NewTxIn(&c.OutPoint, bytes.Clone(redeemScript), nil))
		total += c.Amount
	}
	if total > btcutil.MaxSatoshi {
		return 0, fmt.Errorf("total %d exceeds max supply: %w", total, model.ErrInvalidArgument)
	}
	return total, nil
}

func checkAmount(op wire.OutPoint, amount btcutil.Amount) error {
	if amount <= 0 || amount > btcutil.MaxSatoshi {
		return fmt.Errorf("outpoint %s has invalid amount %d: %w", op, amount, model.ErrInvalidArgument)
	}
	return nil
}

// addressScript returns the locking script for addr and whether it is P2SH.
func addressScript(addr btcutil.Address) ([]byte, bool, error) {
	if addr == nil {
		return nil, false, fmt.Errorf("address is required: %w", model.ErrInvalidArgument)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, false, fmt.Errorf("pay to address %s: %w: %w", addr, err, model.ErrInvalidArgument)
	}
	_, p2sh := addr.(*btcutil.AddressScriptHash)
	return script, p2sh, nil
}

func countOutput(regular, p2sh int, isP2SH bool) (int, int) {
	if isP2SH {
		return regular, p2sh + 1
	}
	return regular + 1, p2sh
}
