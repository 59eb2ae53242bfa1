package model

import "time"

// TimeLockedAddressDTO is the reporting view of a time-locked address handed to the transport layer.
type TimeLockedAddressDTO struct {
	BitcoinAddress string
	CreatedAt      time.Time
	LockedUntil    time.Time
	Locked         bool
	Balance        int64
}

// KeyExchangeResponseDTO carries the server public key returned during key exchange.
type KeyExchangeResponseDTO struct {
	ServerPublicKey string
}
