// Package tla derives time-locked two-party addresses. Funds sent to such an
// address can be spent with client and server signatures at any time, or with
// the client signature alone once the lock time has passed.
package tla

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/goodnatureofminers/custody-core/internal/locktime"
	"github.com/goodnatureofminers/custody-core/internal/model"
	"github.com/goodnatureofminers/custody-core/pkg/safe"
)

// TimeLockedAddress is an immutable P2SH address bound to a client key, a server key and a lock time.
// The address hash does not depend on the network, the encoded address does.
type TimeLockedAddress struct {
	clientPubKey []byte
	serverPubKey []byte
	lockTime     int64

	redeemScript []byte
	addressHash  [20]byte
}

// New builds the address for the given compressed public keys and lock time.
func New(clientPubKey, serverPubKey []byte, lockTime int64) (*TimeLockedAddress, error) {
	if lockTime <= 0 {
		return nil, fmt.Errorf("lock time must be positive, got %d: %w", lockTime, model.ErrInvalidArgument)
	}
	// a spending transaction carries the lock time as uint32
	if _, err := safe.Uint32(lockTime); err != nil {
		return nil, fmt.Errorf("lock time: %v: %w", err, model.ErrInvalidArgument)
	}
	if err := checkPubKey(clientPubKey); err != nil {
		return nil, fmt.Errorf("client key: %w", err)
	}
	if err := checkPubKey(serverPubKey); err != nil {
		return nil, fmt.Errorf("server key: %w", err)
	}

	a := &TimeLockedAddress{
		clientPubKey: bytes.Clone(clientPubKey),
		serverPubKey: bytes.Clone(serverPubKey),
		lockTime:     lockTime,
	}
	script, err := buildRedeemScript(a.clientPubKey, a.serverPubKey, a.lockTime)
	if err != nil {
		return nil, fmt.Errorf("build redeem script: %w", err)
	}
	a.redeemScript = script
	copy(a.addressHash[:], btcutil.Hash160(script))
	return a, nil
}

func checkPubKey(key []byte) error {
	if len(key) != btcec.PubKeyBytesLenCompressed {
		return fmt.Errorf("want %d byte compressed key, got %d bytes: %w",
			btcec.PubKeyBytesLenCompressed, len(key), model.ErrInvalidArgument)
	}
	if _, err := btcec.ParsePubKey(key); err != nil {
		return fmt.Errorf("parse key: %v: %w", err, model.ErrInvalidArgument)
	}
	return nil
}

// ClientPubKey returns a copy of the client key.
func (a *TimeLockedAddress) ClientPubKey() []byte { return bytes.Clone(a.clientPubKey) }

// ServerPubKey returns a copy of the server key.
func (a *TimeLockedAddress) ServerPubKey() []byte { return bytes.Clone(a.serverPubKey) }

// LockTime returns the block height or unix time after which the client may spend alone.
func (a *TimeLockedAddress) LockTime() int64 { return a.lockTime }

// RedeemScript returns a copy of the redeem script.
func (a *TimeLockedAddress) RedeemScript() []byte { return bytes.Clone(a.redeemScript) }

// AddressHash returns Hash160 of the redeem script.
func (a *TimeLockedAddress) AddressHash() []byte { return bytes.Clone(a.addressHash[:]) }

// ScriptHash returns Hash160 of the redeem script as a fixed size array, usable as a map key.
func (a *TimeLockedAddress) ScriptHash() [20]byte { return a.addressHash }

// PubkeyScript returns the P2SH output script paying to this address.
func (a *TimeLockedAddress) PubkeyScript() ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(a.addressHash[:]).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// Address encodes the address for the given network.
func (a *TimeLockedAddress) Address(params *chaincfg.Params) (*btcutil.AddressScriptHash, error) {
	if params == nil {
		return nil, fmt.Errorf("network params required: %w", model.ErrInvalidArgument)
	}
	return btcutil.NewAddressScriptHashFromHash(a.addressHash[:], params)
}

// ScriptSigBeforeLockTime builds the cooperative unlocking script [clientSig serverSig OP_1 redeemScript].
func (a *TimeLockedAddress) ScriptSigBeforeLockTime(clientSig, serverSig []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(clientSig).
		AddData(serverSig).
		AddOp(txscript.OP_TRUE).
		AddData(a.redeemScript).
		Script()
}

// ScriptSigAfterLockTime builds the unilateral unlocking script [clientSig OP_0 redeemScript].
func (a *TimeLockedAddress) ScriptSigAfterLockTime(clientSig []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(clientSig).
		AddOp(txscript.OP_FALSE).
		AddData(a.redeemScript).
		Script()
}

// Equal compares keys and lock time. Network and derived values play no role.
func (a *TimeLockedAddress) Equal(other *TimeLockedAddress) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.lockTime == other.lockTime &&
		bytes.Equal(a.clientPubKey, other.clientPubKey) &&
		bytes.Equal(a.serverPubKey, other.serverPubKey)
}

// DTO builds the reporting view. Locked is true while current lies before the lock time;
// LockedUntil is only set for timestamp lock times.
func (a *TimeLockedAddress) DTO(params *chaincfg.Params, createdAt time.Time, current int64, balance btcutil.Amount) (model.TimeLockedAddressDTO, error) {
	addr, err := a.Address(params)
	if err != nil {
		return model.TimeLockedAddressDTO{}, err
	}
	locked, err := locktime.IsBeforeLockTime(current, a.lockTime)
	if err != nil {
		return model.TimeLockedAddressDTO{}, err
	}
	dto := model.TimeLockedAddressDTO{
		BitcoinAddress: addr.EncodeAddress(),
		CreatedAt:      createdAt,
		Locked:         locked,
		Balance:        int64(balance),
	}
	if locktime.IsByTime(a.lockTime) {
		dto.LockedUntil = time.Unix(a.lockTime, 0).UTC()
	}
	return dto, nil
}

func (a *TimeLockedAddress) String() string {
	return fmt.Sprintf("TimeLockedAddress[hash=%x, lockTime=%d]", a.addressHash, a.lockTime)
}

// StringDetailed adds keys, the script and, if params are given, the encoded address.
func (a *TimeLockedAddress) StringDetailed(params *chaincfg.Params) string {
	var sb strings.Builder
	sb.WriteString("TimeLockedAddress[")
	if params != nil {
		if addr, err := a.Address(params); err == nil {
			fmt.Fprintf(&sb, "address=%s (%s), ", addr.EncodeAddress(), params.Name)
		}
	}
	fmt.Fprintf(&sb, "hash=%x, lockTime=%d, clientPubKey=%s, serverPubKey=%s, redeemScript=%s",
		a.addressHash, a.lockTime,
		hex.EncodeToString(a.clientPubKey), hex.EncodeToString(a.serverPubKey),
		a.disasm())
	sb.WriteString("]")
	return sb.String()
}

func (a *TimeLockedAddress) disasm() string {
	s, err := txscript.DisasmString(a.redeemScript)
	if err != nil {
		return hex.EncodeToString(a.redeemScript)
	}
	return s
}
