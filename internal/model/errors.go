package model

import "errors"

var (
	// ErrInvalidArgument marks malformed keys, scripts or lock times.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientFunds marks a spend that exceeds the available coin value.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrTxConstruction marks dust outputs, fee failsafe hits and empty output sets.
	ErrTxConstruction = errors.New("transaction construction failed")
	// ErrVerification marks a transaction that failed structural or signature checks.
	ErrVerification = errors.New("transaction verification failed")
)
