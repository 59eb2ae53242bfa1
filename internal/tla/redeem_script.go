package tla

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

// redeemScriptOps is the number of opcodes in
//
//	OP_IF <server> OP_CHECKSIGVERIFY OP_ELSE <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP OP_ENDIF <client> OP_CHECKSIG
const redeemScriptOps = 10

// maxLockTimeBytes bounds the lock time push; CHECKLOCKTIMEVERIFY reads up to five bytes.
const maxLockTimeBytes = 5

func buildRedeemScript(clientPubKey, serverPubKey []byte, lockTime int64) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddData(serverPubKey).
		AddOp(txscript.OP_CHECKSIGVERIFY).
		AddOp(txscript.OP_ELSE).
		AddInt64(lockTime).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_ENDIF).
		AddData(clientPubKey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

type scriptOp struct {
	opcode byte
	data   []byte
}

// FromRedeemScript reconstructs an address from its redeem script. Scripts that deviate
// from the template in opcode count, opcode identity, push sizes or encoding are rejected.
func FromRedeemScript(script []byte) (*TimeLockedAddress, error) {
	ops := make([]scriptOp, 0, redeemScriptOps)
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		ops = append(ops, scriptOp{opcode: tokenizer.Opcode(), data: tokenizer.Data()})
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("tokenize redeem script: %v: %w", err, model.ErrInvalidArgument)
	}
	if len(ops) != redeemScriptOps {
		return nil, fmt.Errorf("redeem script has %d opcodes, want %d: %w", len(ops), redeemScriptOps, model.ErrInvalidArgument)
	}

	expect := []struct {
		pos    int
		opcode byte
	}{
		{0, txscript.OP_IF},
		{1, txscript.OP_DATA_33},
		{2, txscript.OP_CHECKSIGVERIFY},
		{3, txscript.OP_ELSE},
		{5, txscript.OP_CHECKLOCKTIMEVERIFY},
		{6, txscript.OP_DROP},
		{7, txscript.OP_ENDIF},
		{8, txscript.OP_DATA_33},
		{9, txscript.OP_CHECKSIG},
	}
	for _, e := range expect {
		if ops[e.pos].opcode != e.opcode {
			return nil, fmt.Errorf("redeem script opcode %d is %s, want %s: %w", e.pos,
				opcodeName(ops[e.pos].opcode), opcodeName(e.opcode), model.ErrInvalidArgument)
		}
	}

	lockTime, err := decodeLockTime(ops[4])
	if err != nil {
		return nil, err
	}

	a, err := New(ops[8].data, ops[1].data, lockTime)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(a.redeemScript, script) {
		return nil, fmt.Errorf("redeem script is not canonically encoded: %w", model.ErrInvalidArgument)
	}
	return a, nil
}

// FromRedeemScriptHex is FromRedeemScript for a hex encoded script.
func FromRedeemScriptHex(s string) (*TimeLockedAddress, error) {
	script, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode redeem script hex: %v: %w", err, model.ErrInvalidArgument)
	}
	return FromRedeemScript(script)
}

// decodeLockTime reads a small-integer opcode or a little-endian sign-magnitude push.
func decodeLockTime(op scriptOp) (int64, error) {
	if op.opcode >= txscript.OP_1 && op.opcode <= txscript.OP_16 {
		return int64(op.opcode-txscript.OP_1) + 1, nil
	}
	if op.opcode < txscript.OP_DATA_1 || op.opcode > txscript.OP_DATA_1+maxLockTimeBytes-1 {
		return 0, fmt.Errorf("lock time push %s not supported: %w", opcodeName(op.opcode), model.ErrInvalidArgument)
	}

	var v int64
	for i, b := range op.data {
		v |= int64(b) << (8 * uint(i))
	}
	last := len(op.data) - 1
	if op.data[last]&0x80 != 0 {
		v &^= int64(0x80) << (8 * uint(last))
		v = -v
	}
	if v <= 0 {
		return 0, fmt.Errorf("lock time must be positive, got %d: %w", v, model.ErrInvalidArgument)
	}
	return v, nil
}

func opcodeName(opcode byte) string {
	s, err := txscript.DisasmString([]byte{opcode})
	if err != nil {
		return fmt.Sprintf("0x%02x", opcode)
	}
	return s
}
