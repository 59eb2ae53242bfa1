package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/metrics"
	"github.com/goodnatureofminers/custody-core/internal/model"
	"github.com/goodnatureofminers/custody-core/internal/node"
	"github.com/goodnatureofminers/custody-core/internal/txbuilder"
)

type config struct {
	Network     model.Network `long:"network" env:"CUSTODY_NETWORK" description:"network name" default:"mainnet"`
	RPCURL      string        `long:"rpc-url" env:"CUSTODY_RPC_URL" description:"Bitcoin RPC URL" default:"http://127.0.0.1:8332"`
	RPCUser     string        `long:"rpc-user" env:"CUSTODY_RPC_USER" description:"Bitcoin RPC username"`
	RPCPassword string        `long:"rpc-password" env:"CUSTODY_RPC_PASSWORD" description:"Bitcoin RPC password"`
	RPCWorkers  int           `long:"rpc-workers" env:"CUSTODY_RPC_WORKERS" description:"concurrent RPC lookups" default:"4"`
	RPCRate     int           `long:"rpc-rate" env:"CUSTODY_RPC_RATE" description:"max RPC requests per second, 0 for unlimited" default:"20"`
}

type app struct {
	cfg    config
	ctx    context.Context
	logger *zap.Logger
	out    io.Writer
}

func (a *app) params() (*chaincfg.Params, error) {
	return model.ChainParams(a.cfg.Network)
}

func (a *app) builder() (*txbuilder.Builder, *chaincfg.Params, error) {
	params, err := a.params()
	if err != nil {
		return nil, nil, err
	}
	b, err := txbuilder.NewBuilder(params, a.logger, metrics.NewTxBuilder(a.cfg.Network))
	if err != nil {
		return nil, nil, err
	}
	return b, params, nil
}

// resolver connects to the node. The returned func shuts the connection down.
func (a *app) resolver() (*node.Resolver, func(), error) {
	client, err := newRPCClient(a.cfg.RPCURL, a.cfg.RPCUser, a.cfg.RPCPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("init rpc client: %w", err)
	}
	shutdown := func() {
		client.Shutdown()
		client.WaitForShutdown()
	}
	rpc := node.NewObservedClient(client, metrics.NewRPCClient(a.cfg.Network))
	return node.NewResolver(rpc, a.cfg.RPCWorkers, a.cfg.RPCRate, a.logger), shutdown, nil
}

func (a *app) printTx(tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return fmt.Errorf("serialize transaction: %w", err)
	}
	if _, err := fmt.Fprintf(a.out, "txid: %s\n", tx.TxHash()); err != nil {
		return err
	}
	for i, out := range tx.TxOut {
		if _, err := fmt.Fprintf(a.out, "output %d: %s BTC\n", i, model.FormatBTC(btcutil.Amount(out.Value))); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(a.out, "hex: %s\n", hex.EncodeToString(buf.Bytes()))
	return err
}

func newRPCClient(rawURL, user, password string) (*rpcclient.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("rpc url scheme %q not supported, use http", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("rpc url missing host")
	}

	cfg := &rpcclient.ConnConfig{
		Host:         parsed.Host,
		User:         user,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	return rpcclient.New(cfg, nil)
}

// parseOutPoints parses "txid:index" pairs.
func parseOutPoints(raw []string) ([]wire.OutPoint, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one outpoint is required: %w", model.ErrInvalidArgument)
	}
	outpoints := make([]wire.OutPoint, 0, len(raw))
	for _, s := range raw {
		txid, index, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("outpoint %q: expected txid:index: %w", s, model.ErrInvalidArgument)
		}
		hash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			return nil, fmt.Errorf("outpoint %q: %w: %w", s, err, model.ErrInvalidArgument)
		}
		idx, err := strconv.ParseUint(index, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("outpoint %q: %w: %w", s, err, model.ErrInvalidArgument)
		}
		outpoints = append(outpoints, wire.OutPoint{Hash: *hash, Index: uint32(idx)})
	}
	return outpoints, nil
}

func decodeAddress(s string, params *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(s, params)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w: %w", s, err, model.ErrInvalidArgument)
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("address %q is not for %s: %w", s, params.Name, model.ErrInvalidArgument)
	}
	return addr, nil
}

func decodeHex(name, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, err, model.ErrInvalidArgument)
	}
	return b, nil
}
