package chain

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

// SS58 address format of the Bittensor networks.
const ss58Prefix = 42

// ParseKeypair derives an sr25519 keypair from a secret URI, mnemonic or
// hex seed. The error never echoes the secret back.
func ParseKeypair(secret string) (signature.KeyringPair, error) {
	pair, err := signature.KeyringPairFromSecret(secret, ss58Prefix)
	if err != nil {
		return signature.KeyringPair{}, fmt.Errorf("deriving sr25519 keypair: %w", err)
	}
	return pair, nil
}
