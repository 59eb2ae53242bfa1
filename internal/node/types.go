// Package node talks to a bitcoin node over JSON-RPC to resolve funding
// outputs, read the chain tip and broadcast transactions.
package node

import (
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// RPCClient is the subset of the btcd RPC client used by this package.
	RPCClient interface {
		GetRawTransaction(txHash *chainhash.Hash) (*btcutil.Tx, error)
		SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (*chainhash.Hash, error)
		GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
	}
	// RPCMetrics records metrics for RPC calls.
	RPCMetrics interface {
		Observe(operation string, err error, started time.Time)
	}
)
