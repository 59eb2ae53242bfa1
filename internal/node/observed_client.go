package node

import (
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ObservedClient wraps an RPC client with metrics instrumentation.
type ObservedClient struct {
	client     RPCClient
	rpcMetrics RPCMetrics
}

// NewObservedClient constructs an instrumented RPC client.
func NewObservedClient(client RPCClient, rpcMetrics RPCMetrics) *ObservedClient {
	return &ObservedClient{
		client:     client,
		rpcMetrics: rpcMetrics,
	}
}

// GetRawTransaction returns the transaction with the given hash.
func (r *ObservedClient) GetRawTransaction(txHash *chainhash.Hash) (tx *btcutil.Tx, err error) {
	started := time.Now()
	defer func() {
		r.rpcMetrics.Observe("get_raw_transaction", err, started)
	}()
	return r.client.GetRawTransaction(txHash)
}

// SendRawTransaction submits a signed transaction to the node.
func (r *ObservedClient) SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (hash *chainhash.Hash, err error) {
	started := time.Now()
	defer func() {
		r.rpcMetrics.Observe("send_raw_transaction", err, started)
	}()
	return r.client.SendRawTransaction(tx, allowHighFees)
}

// GetBlockChainInfo returns the current chain state.
func (r *ObservedClient) GetBlockChainInfo() (res *btcjson.GetBlockChainInfoResult, err error) {
	started := time.Now()
	defer func() {
		r.rpcMetrics.Observe("get_blockchain_info", err, started)
	}()
	return r.client.GetBlockChainInfo()
}
