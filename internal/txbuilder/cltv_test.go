package txbuilder

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

func TestSetFlagsOfCLTVInputs(t *testing.T) {
	addrA := p2shAddress(t, "locked-a")
	addrB := p2shAddress(t, "locked-b")
	other := p2shAddress(t, "other")
	var hashA, hashB [20]byte
	copy(hashA[:], addrA.ScriptAddress())
	copy(hashB[:], addrB.ScriptAddress())

	outputs := []model.FundingOutput{
		fundingOutput("a", 0, 100_000, payTo(t, addrA)),
		fundingOutput("b", 0, 100_000, payTo(t, addrB)),
		fundingOutput("c", 0, 100_000, payTo(t, other)),
	}

	tests := []struct {
		name         string
		lockTimes    map[[20]byte]int64
		current      int64
		wantErr      error
		wantLockTime uint32
		wantAfter    []bool
	}{
		{
			name:         "all after lock time",
			lockTimes:    map[[20]byte]int64{hashA: 100, hashB: 200},
			current:      300,
			wantLockTime: 200,
			wantAfter:    []bool{true, true, false},
		},
		{
			name:         "one before lock time",
			lockTimes:    map[[20]byte]int64{hashA: 100, hashB: 400},
			current:      300,
			wantLockTime: 100,
			wantAfter:    []bool{true, false, false},
		},
		{
			name:         "at lock time counts as after",
			lockTimes:    map[[20]byte]int64{hashA: 300},
			current:      300,
			wantLockTime: 300,
			wantAfter:    []bool{true, false, false},
		},
		{
			name:         "all before lock time",
			lockTimes:    map[[20]byte]int64{hashA: 500, hashB: 600},
			current:      300,
			wantLockTime: 0,
			wantAfter:    []bool{false, false, false},
		},
		{
			name:      "mixed classes",
			lockTimes: map[[20]byte]int64{hashA: 100, hashB: 600_000_000},
			current:   300,
			wantErr:   model.ErrInvalidArgument,
		},
		{
			name:      "negative current",
			lockTimes: map[[20]byte]int64{hashA: 100},
			current:   -1,
			wantErr:   model.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t)
			tx := wire.NewMsgTx(wire.TxVersion)
			for _, out := range outputs {
				tx.AddTxIn(wire.NewTxIn(&out.OutPoint, nil, nil))
			}
			before := serialize(t, tx)

			err := b.SetFlagsOfCLTVInputs(tx, PrevOutputFetcher(outputs), tt.lockTimes, tt.current)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, before, serialize(t, tx))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantLockTime, tx.LockTime)
			for i, in := range tx.TxIn {
				want := uint32(wire.MaxTxInSequenceNum)
				if tt.wantAfter[i] {
					want = wire.MaxTxInSequenceNum - 1
				}
				require.Equal(t, want, in.Sequence, "input %d", i)
			}
		})
	}
}

func TestSetFlagsOfCLTVInputsMissingPrevOut(t *testing.T) {
	b := newBuilder(t)
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 7}, nil, nil))

	err := b.SetFlagsOfCLTVInputs(tx, PrevOutputFetcher(nil), map[[20]byte]int64{}, 100)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}
