package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/golang/mock/gomock"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

func fundingTx(values ...int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.HashH([]byte("parent")), Index: 0}, nil, nil))
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, []byte{0x51}))
	}
	return tx
}

func TestResolver_FundingOutputs(t *testing.T) {
	txA := fundingTx(1_000, 2_000)
	txB := fundingTx(3_000)
	hashA, hashB := txA.TxHash(), txB.TxHash()

	tests := []struct {
		name       string
		outpoints  []wire.OutPoint
		setup      func(rpc *MockRPCClient)
		wantValues []int64
		wantErr    error
	}{
		{
			name: "resolves in order and fetches each transaction once",
			outpoints: []wire.OutPoint{
				{Hash: hashB, Index: 0},
				{Hash: hashA, Index: 1},
				{Hash: hashA, Index: 0},
			},
			setup: func(rpc *MockRPCClient) {
				rpc.EXPECT().GetRawTransaction(&hashA).Return(btcutil.NewTx(txA), nil).Times(1)
				rpc.EXPECT().GetRawTransaction(&hashB).Return(btcutil.NewTx(txB), nil).Times(1)
			},
			wantValues: []int64{3_000, 2_000, 1_000},
		},
		{
			name:      "index out of range",
			outpoints: []wire.OutPoint{{Hash: hashB, Index: 1}},
			setup: func(rpc *MockRPCClient) {
				rpc.EXPECT().GetRawTransaction(&hashB).Return(btcutil.NewTx(txB), nil)
			},
			wantErr: model.ErrInvalidArgument,
		},
		{
			name:      "rpc error",
			outpoints: []wire.OutPoint{{Hash: hashA, Index: 0}},
			setup: func(rpc *MockRPCClient) {
				rpc.EXPECT().GetRawTransaction(&hashA).Return(nil, errBoom)
			},
			wantErr: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			rpc := NewMockRPCClient(ctrl)
			tt.setup(rpc)
			r := NewResolver(rpc, 2, 0, zap.NewNop())

			got, err := r.FundingOutputs(context.Background(), tt.outpoints)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FundingOutputs() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FundingOutputs() error = %v", err)
			}
			if len(got) != len(tt.wantValues) {
				t.Fatalf("FundingOutputs() len = %d, want %d", len(got), len(tt.wantValues))
			}
			for i, out := range got {
				if out.OutPoint != tt.outpoints[i] {
					t.Fatalf("output %d outpoint = %s, want %s", i, out.OutPoint, tt.outpoints[i])
				}
				if out.TxOut.Value != tt.wantValues[i] {
					t.Fatalf("output %d value = %d, want %d", i, out.TxOut.Value, tt.wantValues[i])
				}
			}
		})
	}
}

var errBoom = errors.New("boom")

func TestResolver_Coins(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	tx := fundingTx(5_000)
	hash := tx.TxHash()
	rpc := NewMockRPCClient(ctrl)
	rpc.EXPECT().GetRawTransaction(&hash).Return(btcutil.NewTx(tx), nil)

	coins, err := NewResolver(rpc, 1, 10, zap.NewNop()).Coins(context.Background(), []wire.OutPoint{{Hash: hash}})
	if err != nil {
		t.Fatalf("Coins() error = %v", err)
	}
	if len(coins) != 1 || coins[0].Amount != 5_000 {
		t.Fatalf("Coins() = %+v", coins)
	}
}

func TestResolver_CanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(NewMockRPCClient(ctrl), 1, 0, zap.NewNop())
	if _, err := r.FundingOutputs(ctx, []wire.OutPoint{{Index: 1}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("FundingOutputs() error = %v, want context.Canceled", err)
	}
	if _, err := r.Tip(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Tip() error = %v, want context.Canceled", err)
	}
}

func TestResolver_Tip(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	rpc := NewMockRPCClient(ctrl)
	rpc.EXPECT().GetBlockChainInfo().Return(&btcjson.GetBlockChainInfoResult{Blocks: 840_000, MedianTime: 1_713_571_767}, nil)

	tip, err := NewResolver(rpc, 1, 0, zap.NewNop()).Tip(context.Background())
	if err != nil {
		t.Fatalf("Tip() error = %v", err)
	}
	if tip.Height != 840_000 || tip.MedianTime != 1_713_571_767 {
		t.Fatalf("Tip() = %+v", tip)
	}
}

func TestResolver_Broadcast(t *testing.T) {
	tests := []struct {
		name    string
		tx      *wire.MsgTx
		setup   func(rpc *MockRPCClient, tx *wire.MsgTx)
		wantErr error
	}{
		{
			name: "success",
			tx:   fundingTx(1_000),
			setup: func(rpc *MockRPCClient, tx *wire.MsgTx) {
				hash := tx.TxHash()
				rpc.EXPECT().SendRawTransaction(tx, false).Return(&hash, nil)
			},
		},
		{
			name:    "insane transaction is not sent",
			tx:      wire.NewMsgTx(wire.TxVersion),
			setup:   func(*MockRPCClient, *wire.MsgTx) {},
			wantErr: model.ErrVerification,
		},
		{
			name: "node rejects",
			tx:   fundingTx(1_000),
			setup: func(rpc *MockRPCClient, tx *wire.MsgTx) {
				rpc.EXPECT().SendRawTransaction(tx, false).Return(nil, errBoom)
			},
			wantErr: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			rpc := NewMockRPCClient(ctrl)
			tt.setup(rpc, tt.tx)

			hash, err := NewResolver(rpc, 1, 0, zap.NewNop()).Broadcast(context.Background(), tt.tx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Broadcast() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Broadcast() error = %v", err)
			}
			want := tt.tx.TxHash()
			if !hash.IsEqual(&want) {
				t.Fatalf("Broadcast() = %s, want %s", hash, want)
			}
		})
	}
}

func TestChainTip_Final(t *testing.T) {
	tip := ChainTip{Height: 800_000, MedianTime: 1_700_000_000}

	tests := []struct {
		name     string
		lockTime int64
		want     bool
	}{
		{name: "no lock time", lockTime: 0, want: true},
		{name: "height reached", lockTime: 800_000, want: true},
		{name: "height ahead", lockTime: 800_001, want: false},
		{name: "time passed", lockTime: 1_699_999_999, want: true},
		{name: "time equal to median", lockTime: 1_700_000_000, want: false},
		{name: "time ahead", lockTime: 1_700_000_600, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tip.Final(tt.lockTime)
			if err != nil {
				t.Fatalf("Final() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Final(%d) = %v, want %v", tt.lockTime, got, tt.want)
			}
		})
	}

	if got := tip.Current(500); got != tip.Height {
		t.Fatalf("Current(height) = %d, want %d", got, tip.Height)
	}
	if got := tip.Current(1_700_000_600); got != tip.MedianTime {
		t.Fatalf("Current(time) = %d, want %d", got, tip.MedianTime)
	}
}

func TestResolver_WaitForLockTime(t *testing.T) {
	tests := []struct {
		name     string
		lockTime int64
		heights  []int32
		rpcErr   error
		wantErr  error
	}{
		{
			name:     "returns once the height is reached",
			lockTime: 101,
			heights:  []int32{99, 100, 101},
		},
		{
			name:     "already final",
			lockTime: 50,
			heights:  []int32{100},
		},
		{
			name:     "rpc error stops waiting",
			lockTime: 101,
			rpcErr:   errBoom,
			wantErr:  errBoom,
		},
		{
			name:     "negative lock time",
			lockTime: -1,
			wantErr:  model.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			rpc := NewMockRPCClient(ctrl)
			var calls []*gomock.Call
			for _, h := range tt.heights {
				calls = append(calls, rpc.EXPECT().GetBlockChainInfo().
					Return(&btcjson.GetBlockChainInfoResult{Blocks: h, MedianTime: 1_700_000_000}, nil))
			}
			if len(calls) > 1 {
				gomock.InOrder(calls...)
			}
			if tt.rpcErr != nil {
				rpc.EXPECT().GetBlockChainInfo().Return(nil, tt.rpcErr)
			}

			err := NewResolver(rpc, 1, 0, zap.NewNop()).WaitForLockTime(context.Background(), tt.lockTime, time.Millisecond)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("WaitForLockTime() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("WaitForLockTime() error = %v", err)
			}
		})
	}
}

func TestResolver_WaitForLockTimeCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	rpc := NewMockRPCClient(ctrl)
	rpc.EXPECT().GetBlockChainInfo().Return(&btcjson.GetBlockChainInfoResult{Blocks: 10}, nil).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	t.Cleanup(cancel)

	err := NewResolver(rpc, 1, 0, zap.NewNop()).WaitForLockTime(ctx, 1_000, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForLockTime() error = %v, want context.DeadlineExceeded", err)
	}
}
