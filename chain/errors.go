package chain

import (
	"errors"
	"strings"
)

var (
	ErrDropped            = errors.New("extrinsic was dropped from the pool")
	ErrInvalid            = errors.New("extrinsic was marked invalid")
	ErrUsurped            = errors.New("extrinsic was usurped by a competing transaction")
	ErrSubscriptionClosed = errors.New("extrinsic status subscription closed")
)

// Substrate nodes report pallet and pool errors as free-form strings, so
// classification is by marker substrings, the same set the registration
// flow has been observed to hit.
var recoverableMarkers = []string{
	"TooManyConsumers",
	"InvalidTransaction",
	"Stale",
	"nonce",
	"outdated",
	"Priority is too low",
}

var alreadyRegisteredMarkers = []string{
	"AlreadyRegistered",
	"already registered",
	"duplicate",
}

// IsRecoverable reports whether err is a transient submission failure that
// is worth retrying on the next matching slot.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDropped) || errors.Is(err, ErrInvalid) || errors.Is(err, ErrUsurped) {
		return true
	}
	return containsAny(err.Error(), recoverableMarkers)
}

// IsAlreadyRegistered reports whether err indicates the hotkey is already
// registered on the subnet.
func IsAlreadyRegistered(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), alreadyRegisteredMarkers)
}

func containsAny(msg string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
