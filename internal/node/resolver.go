package node

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/clock"
	"github.com/goodnatureofminers/custody-core/internal/locktime"
	"github.com/goodnatureofminers/custody-core/internal/model"
	"github.com/goodnatureofminers/custody-core/pkg/workerpool"
)

// ChainTip is the chain position used to evaluate lock times.
type ChainTip struct {
	Height     int64
	MedianTime int64
}

// Current returns the tip value comparable with lockTime: the median time past
// for timestamp lock times, the height otherwise.
func (t ChainTip) Current(lockTime int64) int64 {
	if locktime.IsByTime(lockTime) {
		return t.MedianTime
	}
	return t.Height
}

// Final reports whether a transaction with lockTime may be included in the next block.
func (t ChainTip) Final(lockTime int64) (bool, error) {
	switch {
	case lockTime == 0:
		return true, nil
	case locktime.IsByBlock(lockTime):
		// the next block is at Height+1
		return locktime.IsAfterLockTime(t.Height, lockTime)
	default:
		return locktime.IsBeforeLockTime(lockTime, t.MedianTime)
	}
}

// Resolver turns outpoints into funding outputs by fetching their transactions.
type Resolver struct {
	rpc     RPCClient
	limiter ratelimit.Limiter
	workers int
	logger  *zap.Logger
}

// NewResolver constructs a Resolver issuing at most rps requests per second from
// workers concurrent goroutines. rps <= 0 disables rate limiting.
func NewResolver(rpc RPCClient, workers, rps int, logger *zap.Logger) *Resolver {
	limiter := ratelimit.NewUnlimited()
	if rps > 0 {
		limiter = ratelimit.New(rps)
	}
	return &Resolver{
		rpc:     rpc,
		limiter: limiter,
		workers: workers,
		logger:  logger.Named("resolver"),
	}
}

// FundingOutputs returns the outputs spent by outpoints, in the same order.
// Each referenced transaction is fetched once.
func (r *Resolver) FundingOutputs(ctx context.Context, outpoints []wire.OutPoint) ([]model.FundingOutput, error) {
	hashes := make([]chainhash.Hash, 0, len(outpoints))
	seen := make(map[chainhash.Hash]struct{}, len(outpoints))
	for _, op := range outpoints {
		if _, dup := seen[op.Hash]; dup {
			continue
		}
		seen[op.Hash] = struct{}{}
		hashes = append(hashes, op.Hash)
	}

	txs, err := workerpool.Map(ctx, r.workers, hashes, r.fetchTx)
	if err != nil {
		return nil, err
	}
	byHash := make(map[chainhash.Hash]*wire.MsgTx, len(txs))
	for i, tx := range txs {
		byHash[hashes[i]] = tx
	}

	outputs := make([]model.FundingOutput, 0, len(outpoints))
	for _, op := range outpoints {
		tx := byHash[op.Hash]
		if int(op.Index) >= len(tx.TxOut) {
			return nil, fmt.Errorf("outpoint %s: transaction has %d outputs: %w", op, len(tx.TxOut), model.ErrInvalidArgument)
		}
		outputs = append(outputs, model.FundingOutput{OutPoint: op, TxOut: tx.TxOut[op.Index]})
	}
	r.logger.Debug("resolved funding outputs", zap.Int("outpoints", len(outpoints)), zap.Int("transactions", len(hashes)))
	return outputs, nil
}

// Coins returns the outpoints paired with the values they carry.
func (r *Resolver) Coins(ctx context.Context, outpoints []wire.OutPoint) ([]model.Coin, error) {
	outputs, err := r.FundingOutputs(ctx, outpoints)
	if err != nil {
		return nil, err
	}
	coins := make([]model.Coin, 0, len(outputs))
	for _, out := range outputs {
		coins = append(coins, model.Coin{OutPoint: out.OutPoint, Amount: out.Amount()})
	}
	return coins, nil
}

// Tip returns the current block height and median time past.
func (r *Resolver) Tip(ctx context.Context) (ChainTip, error) {
	if err := ctx.Err(); err != nil {
		return ChainTip{}, err
	}
	r.limiter.Take()
	info, err := r.rpc.GetBlockChainInfo()
	if err != nil {
		return ChainTip{}, fmt.Errorf("get blockchain info: %w", err)
	}
	return ChainTip{Height: int64(info.Blocks), MedianTime: info.MedianTime}, nil
}

// WaitForLockTime polls the node tip every interval until a transaction with
// lockTime becomes final.
func (r *Resolver) WaitForLockTime(ctx context.Context, lockTime int64, interval time.Duration) error {
	if lockTime < 0 {
		return fmt.Errorf("lock time %d: %w", lockTime, model.ErrInvalidArgument)
	}
	return clock.Poll(ctx, interval, func(ctx context.Context) (bool, error) {
		tip, err := r.Tip(ctx)
		if err != nil {
			return false, err
		}
		final, err := tip.Final(lockTime)
		if err != nil {
			return false, err
		}
		if !final {
			r.logger.Debug("waiting for lock time",
				zap.Int64("lock_time", lockTime),
				zap.Int64("current", tip.Current(lockTime)))
		}
		return final, nil
	})
}

// Broadcast checks tx for sanity and submits it to the node.
func (r *Resolver) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := blockchain.CheckTransactionSanity(btcutil.NewTx(tx)); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrVerification, err)
	}
	r.limiter.Take()
	hash, err := r.rpc.SendRawTransaction(tx, false)
	if err != nil {
		return nil, fmt.Errorf("send transaction %s: %w", tx.TxHash(), err)
	}
	r.logger.Info("transaction broadcast", zap.String("txid", hash.String()))
	return hash, nil
}

func (r *Resolver) fetchTx(ctx context.Context, hash chainhash.Hash) (*wire.MsgTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.limiter.Take()
	tx, err := r.rpc.GetRawTransaction(&hash)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}
	if tx == nil || tx.MsgTx() == nil {
		return nil, fmt.Errorf("transaction %s not found", hash)
	}
	return tx.MsgTx(), nil
}
