package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/locktime"
	"github.com/goodnatureofminers/custody-core/internal/model"
	"github.com/goodnatureofminers/custody-core/internal/node"
	"github.com/goodnatureofminers/custody-core/internal/tla"
	"github.com/goodnatureofminers/custody-core/internal/txbuilder"
)

type addressCommand struct {
	app *app

	ClientKey string `long:"client-key" description:"client compressed public key, hex" required:"true"`
	ServerKey string `long:"server-key" description:"server compressed public key, hex" required:"true"`
	LockTime  int64  `long:"lock-time" description:"block height or unix time" required:"true"`
}

func (c *addressCommand) Execute(_ []string) error {
	params, err := c.app.params()
	if err != nil {
		return err
	}
	client, err := decodeHex("client key", c.ClientKey)
	if err != nil {
		return err
	}
	server, err := decodeHex("server key", c.ServerKey)
	if err != nil {
		return err
	}
	addr, err := tla.New(client, server, c.LockTime)
	if err != nil {
		return fmt.Errorf("derive address: %w", err)
	}
	encoded, err := addr.Address(params)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.app.out, "address: %s\nhash: %x\nredeem script: %x\n%s\n",
		encoded.EncodeAddress(), addr.AddressHash(), addr.RedeemScript(), addr.StringDetailed(params))
	return err
}

type refundCommand struct {
	app *app

	OutPoints     []string `long:"outpoint" description:"funding outpoint txid:index, repeatable" required:"true"`
	RedeemScript  string   `long:"redeem-script" description:"redeem script of the funding address, hex" required:"true"`
	RefundAddress string   `long:"refund-address" description:"address receiving the refund" required:"true"`
	LockTime      int64    `long:"lock-time" description:"transaction lock time, defaults to the time-locked address lock time"`
}

func (c *refundCommand) Execute(_ []string) error {
	b, params, err := c.app.builder()
	if err != nil {
		return err
	}
	outpoints, err := parseOutPoints(c.OutPoints)
	if err != nil {
		return err
	}
	redeemScript, err := decodeHex("redeem script", c.RedeemScript)
	if err != nil {
		return err
	}
	lockTime := c.LockTime
	if lockTime == 0 {
		addr, err := tla.FromRedeemScript(redeemScript)
		if err != nil {
			return fmt.Errorf("lock time is required for non time-locked scripts: %w", err)
		}
		lockTime = addr.LockTime()
	}
	refundAddr, err := decodeAddress(c.RefundAddress, params)
	if err != nil {
		return err
	}

	r, shutdown, err := c.app.resolver()
	if err != nil {
		return err
	}
	defer shutdown()
	coins, err := r.Coins(c.app.ctx, outpoints)
	if err != nil {
		return fmt.Errorf("resolve coins: %w", err)
	}

	tx, err := b.CreateRefundTx(coins, redeemScript, refundAddr, lockTime)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return c.app.printTx(tx)
}

type spendAllCommand struct {
	app *app

	OutPoints  []string `long:"outpoint" description:"funding outpoint txid:index, repeatable" required:"true"`
	To         string   `long:"to" description:"destination address" required:"true"`
	TimeLocked []string `long:"time-locked" description:"redeem script of a spent time-locked address, hex, repeatable"`
}

func (c *spendAllCommand) Execute(_ []string) error {
	b, params, err := c.app.builder()
	if err != nil {
		return err
	}
	outpoints, err := parseOutPoints(c.OutPoints)
	if err != nil {
		return err
	}
	to, err := decodeAddress(c.To, params)
	if err != nil {
		return err
	}

	r, shutdown, err := c.app.resolver()
	if err != nil {
		return err
	}
	defer shutdown()
	outputs, err := r.FundingOutputs(c.app.ctx, outpoints)
	if err != nil {
		return fmt.Errorf("resolve outputs: %w", err)
	}

	tx, err := b.CreateSpendAllTx(outputs, to)
	if err != nil {
		return fmt.Errorf("create spend-all: %w", err)
	}
	if err := c.app.applyLockTimes(b, r, tx, outputs, c.TimeLocked); err != nil {
		return err
	}
	return c.app.printTx(tx)
}

type spendCommand struct {
	app *app

	OutPoints        []string `long:"outpoint" description:"funding outpoint txid:index, repeatable" required:"true"`
	To               string   `long:"to" description:"destination address" required:"true"`
	Change           string   `long:"change" description:"change address" required:"true"`
	Amount           float64  `long:"amount" description:"amount to spend in BTC" required:"true"`
	RecipientPaysFee bool     `long:"recipient-pays-fee" description:"deduct the fee from the spent amount"`
	OwnAddresses     []string `long:"own-address" description:"only spend outputs paying to this P2SH address, repeatable"`
	TimeLocked       []string `long:"time-locked" description:"redeem script of a spent time-locked address, hex, repeatable"`
}

func (c *spendCommand) Execute(_ []string) error {
	b, params, err := c.app.builder()
	if err != nil {
		return err
	}
	outpoints, err := parseOutPoints(c.OutPoints)
	if err != nil {
		return err
	}
	to, err := decodeAddress(c.To, params)
	if err != nil {
		return err
	}
	amount, err := model.AmountFromBTC(c.Amount)
	if err != nil {
		return err
	}
	change, err := decodeAddress(c.Change, params)
	if err != nil {
		return err
	}
	own := make([]btcutil.Address, 0, len(c.OwnAddresses))
	for _, s := range c.OwnAddresses {
		addr, err := decodeAddress(s, params)
		if err != nil {
			return err
		}
		own = append(own, addr)
	}

	r, shutdown, err := c.app.resolver()
	if err != nil {
		return err
	}
	defer shutdown()
	outputs, err := r.FundingOutputs(c.app.ctx, outpoints)
	if err != nil {
		return fmt.Errorf("resolve outputs: %w", err)
	}

	var tx *wire.MsgTx
	if len(own) > 0 {
		if c.RecipientPaysFee {
			return fmt.Errorf("--recipient-pays-fee cannot be combined with --own-address: %w", model.ErrInvalidArgument)
		}
		tx, err = b.CreateTxFromOwnedOutputs(outputs, own, change, to, amount)
	} else {
		tx, err = b.CreateTx(outputs, change, to, amount, !c.RecipientPaysFee)
	}
	if err != nil {
		return fmt.Errorf("create spend: %w", err)
	}
	if err := c.app.applyLockTimes(b, r, tx, outputs, c.TimeLocked); err != nil {
		return err
	}
	return c.app.printTx(tx)
}

type broadcastCommand struct {
	app *app

	Tx       string        `long:"tx" description:"signed transaction, hex" required:"true"`
	Wait     bool          `long:"wait" description:"wait until the transaction lock time has passed before sending"`
	Interval time.Duration `long:"interval" description:"chain tip polling interval while waiting" default:"30s"`
}

func (c *broadcastCommand) Execute(_ []string) error {
	raw, err := decodeHex("transaction", c.Tx)
	if err != nil {
		return err
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("decode transaction: %w: %w", err, model.ErrInvalidArgument)
	}

	r, shutdown, err := c.app.resolver()
	if err != nil {
		return err
	}
	defer shutdown()
	if c.Wait && tx.LockTime != 0 {
		c.app.logger.Info("waiting for lock time", zap.Uint32("lock_time", tx.LockTime), zap.Duration("interval", c.Interval))
		if err := r.WaitForLockTime(c.app.ctx, int64(tx.LockTime), c.Interval); err != nil {
			return fmt.Errorf("wait for lock time: %w", err)
		}
	}
	hash, err := r.Broadcast(c.app.ctx, &tx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.app.out, "txid: %s\n", hash)
	return err
}

// applyLockTimes sets CLTV sequence numbers and the transaction lock time for inputs
// spending the given time-locked addresses, using the node tip as the current time.
func (a *app) applyLockTimes(b *txbuilder.Builder, r *node.Resolver, tx *wire.MsgTx,
	outputs []model.FundingOutput, redeemScripts []string) error {
	if len(redeemScripts) == 0 {
		return nil
	}
	lockTimes, class, err := parseLockTimes(redeemScripts)
	if err != nil {
		return err
	}

	tip, err := r.Tip(a.ctx)
	if err != nil {
		return err
	}
	current := tip.Current(class)
	a.logger.Debug("applying lock times", zap.Int64("current", current), zap.Int("addresses", len(lockTimes)))
	return b.SetFlagsOfCLTVInputs(tx, txbuilder.PrevOutputFetcher(outputs), lockTimes, current)
}

// parseLockTimes maps each time-locked script hash to its lock time. A transaction has a
// single lock time, so all scripts must use the same class; one of them is returned as class.
func parseLockTimes(redeemScripts []string) (map[[20]byte]int64, int64, error) {
	lockTimes := make(map[[20]byte]int64, len(redeemScripts))
	var class int64
	for i, s := range redeemScripts {
		addr, err := tla.FromRedeemScriptHex(s)
		if err != nil {
			return nil, 0, fmt.Errorf("time-locked script %d: %w", i, err)
		}
		if i > 0 && locktime.IsByTime(addr.LockTime()) != locktime.IsByTime(class) {
			return nil, 0, fmt.Errorf("time-locked script %d: block height and timestamp lock times cannot be spent in one transaction: %w",
				i, model.ErrInvalidArgument)
		}
		class = addr.LockTime()
		lockTimes[addr.ScriptHash()] = addr.LockTime()
	}
	return lockTimes, class, nil
}
