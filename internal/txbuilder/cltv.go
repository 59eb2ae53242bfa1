package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/custody-core/internal/locktime"
	"github.com/goodnatureofminers/custody-core/internal/model"
	"github.com/goodnatureofminers/custody-core/pkg/safe"
)

// SetFlagsOfCLTVInputs prepares tx for spending time-locked outputs. lockTimes maps
// the 20-byte hash of a connected output script to its lock time and current is the
// present block height or unix time. Inputs spent after their lock time get sequence
// MaxTxInSequenceNum-1 and the transaction lock time becomes the largest such lock
// time, or zero when no input qualifies. On error tx is left unchanged.
func (b *Builder) SetFlagsOfCLTVInputs(tx *wire.MsgTx, prevOuts txscript.PrevOutputFetcher,
	lockTimes map[[20]byte]int64, current int64) error {
	if tx == nil || prevOuts == nil {
		return fmt.Errorf("transaction and previous outputs are required: %w", model.ErrInvalidArgument)
	}

	var (
		maxLockTime int64
		afterInputs []int
	)
	for i, in := range tx.TxIn {
		prev := prevOuts.FetchPrevOutput(in.PreviousOutPoint)
		if prev == nil {
			return fmt.Errorf("missing previous output %s: %w", in.PreviousOutPoint, model.ErrInvalidArgument)
		}
		hash, ok := scriptHash160(prev.PkScript)
		if !ok {
			continue
		}
		inputLockTime, ok := lockTimes[hash]
		if !ok {
			// not a time-locked output
			continue
		}
		before, err := locktime.IsBeforeLockTime(current, inputLockTime)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if before {
			b.logger.Debug("input spent before lock time",
				zap.Int("input", i), zap.Int64("current", current), zap.Int64("lock_time", inputLockTime))
			continue
		}
		b.logger.Debug("input spent after lock time",
			zap.Int("input", i), zap.Int64("current", current), zap.Int64("lock_time", inputLockTime))
		afterInputs = append(afterInputs, i)
		maxLockTime = max(maxLockTime, inputLockTime)
	}

	txLockTime, err := safe.Uint32(maxLockTime)
	if err != nil {
		return fmt.Errorf("lock time: %w: %w", err, model.ErrInvalidArgument)
	}
	for _, i := range afterInputs {
		tx.TxIn[i].Sequence = wire.MaxTxInSequenceNum - 1
	}
	tx.LockTime = txLockTime
	return nil
}

// scriptHash160 extracts the 20-byte hash of a P2SH or P2PKH script.
func scriptHash160(pkScript []byte) ([20]byte, bool) {
	var hash [20]byte
	switch txscript.GetScriptClass(pkScript) {
	case txscript.ScriptHashTy:
		copy(hash[:], pkScript[2:22])
	case txscript.PubKeyHashTy:
		copy(hash[:], pkScript[3:23])
	default:
		return hash, false
	}
	return hash, true
}
