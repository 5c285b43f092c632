package chain

import (
	"context"
	"fmt"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/author"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/tensorops/regbot/logging"
)

const (
	palletName      = "SubtensorModule"
	registerCall    = "burned_register"
	burnStorageItem = "Burn"
)

// Header identifies the best block at the time of a poll.
type Header struct {
	Number uint64
	Hash   types.Hash
}

// Keys holds the key material used for registration. The coldkey signs and
// pays for the extrinsic, the hotkey is the account being registered.
type Keys struct {
	Coldkey signature.KeyringPair
	Hotkey  signature.KeyringPair
}

// RegistrationRequest describes a single registration attempt. Anchor is the
// block the transaction mortality is anchored at.
type RegistrationRequest struct {
	Netuid uint16
	Anchor Header
}

// Watcher follows an in-flight extrinsic to a terminal status.
type Watcher interface {
	ExtrinsicHash() types.Hash
	// WaitFinalized blocks until the extrinsic is finalized or reaches a
	// terminal failure. It reports the hash of the finalized block.
	WaitFinalized(ctx context.Context) (types.Hash, error)
}

type Client struct {
	api       *gsrpc.SubstrateAPI
	meta      *types.Metadata
	genesis   types.Hash
	keys      Keys
	mortality uint64
}

// Dial connects to the chain endpoint and caches the runtime metadata and
// genesis hash for the lifetime of the client.
func Dial(ctx context.Context, endpoint string, keys Keys, mortality uint64) (*Client, error) {
	api, err := gsrpc.NewSubstrateAPI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("fetching runtime metadata: %w", err)
	}
	genesis, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("fetching genesis hash: %w", err)
	}

	logging.FromContext(ctx).Info(
		"connected to chain",
		zap.String("endpoint", endpoint),
		zap.String("genesis", genesis.Hex()),
	)

	return &Client{
		api:       api,
		meta:      meta,
		genesis:   genesis,
		keys:      keys,
		mortality: mortality,
	}, nil
}

// LatestHeader returns the number and hash of the current best block.
func (c *Client) LatestHeader(ctx context.Context) (Header, error) {
	hash, err := c.api.RPC.Chain.GetBlockHashLatest()
	if err != nil {
		return Header{}, fmt.Errorf("fetching latest block hash: %w", err)
	}
	header, err := c.api.RPC.Chain.GetHeader(hash)
	if err != nil {
		return Header{}, fmt.Errorf("fetching header %s: %w", hash.Hex(), err)
	}
	return Header{Number: uint64(header.Number), Hash: hash}, nil
}

// BurnCost returns the current recycle cost (in RAO) of registering on the
// given subnet, read from the SubtensorModule.Burn storage item.
func (c *Client) BurnCost(ctx context.Context, netuid uint16) (uint64, error) {
	arg, err := codec.Encode(types.NewU16(netuid))
	if err != nil {
		return 0, fmt.Errorf("encoding netuid: %w", err)
	}
	key, err := types.CreateStorageKey(c.meta, palletName, burnStorageItem, arg)
	if err != nil {
		return 0, fmt.Errorf("creating storage key: %w", err)
	}
	var cost types.U64
	ok, err := c.api.RPC.State.GetStorageLatest(key, &cost)
	if err != nil {
		return 0, fmt.Errorf("querying burn cost: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("burn cost not found for netuid %d", netuid)
	}
	return uint64(cost), nil
}

// AccountNonce returns the next nonce of the signing account.
func (c *Client) AccountNonce(ctx context.Context) (uint64, error) {
	key, err := types.CreateStorageKey(c.meta, "System", "Account", c.keys.Coldkey.PublicKey)
	if err != nil {
		return 0, fmt.Errorf("creating storage key: %w", err)
	}
	var info types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return 0, fmt.Errorf("querying account info: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return uint64(info.Nonce), nil
}

// SubmitRegistration signs and submits a burned_register extrinsic for the
// configured hotkey and returns a watcher for its pool status.
func (c *Client) SubmitRegistration(ctx context.Context, req RegistrationRequest) (Watcher, error) {
	hotkey, err := types.NewAccountID(c.keys.Hotkey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("building hotkey account id: %w", err)
	}
	call, err := types.NewCall(
		c.meta,
		fmt.Sprintf("%s.%s", palletName, registerCall),
		types.NewU16(req.Netuid),
		*hotkey,
	)
	if err != nil {
		return nil, fmt.Errorf("building call: %w", err)
	}
	ext := types.NewExtrinsic(call)

	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, fmt.Errorf("fetching runtime version: %w", err)
	}
	nonce, err := c.AccountNonce(ctx)
	if err != nil {
		return nil, err
	}

	opts := types.SignatureOptions{
		BlockHash:          req.Anchor.Hash,
		Era:                MortalEra(c.mortality, req.Anchor.Number),
		GenesisHash:        c.genesis,
		Nonce:              types.NewUCompactFromUInt(nonce),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	}
	if err := ext.Sign(c.keys.Coldkey, opts); err != nil {
		return nil, fmt.Errorf("signing extrinsic: %w", err)
	}

	encoded, err := codec.Encode(ext)
	if err != nil {
		return nil, fmt.Errorf("encoding extrinsic: %w", err)
	}
	extHash := types.Hash(blake2b.Sum256(encoded))

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return nil, fmt.Errorf("submitting extrinsic: %w", err)
	}
	return &submission{sub: sub, hash: extHash}, nil
}

type submission struct {
	sub  *author.ExtrinsicStatusSubscription
	hash types.Hash
}

func (s *submission) ExtrinsicHash() types.Hash {
	return s.hash
}

func (s *submission) WaitFinalized(ctx context.Context) (types.Hash, error) {
	defer s.sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return types.Hash{}, ctx.Err()
		case status, ok := <-s.sub.Chan():
			if !ok {
				return types.Hash{}, ErrSubscriptionClosed
			}
			switch {
			case status.IsFinalized:
				return status.AsFinalized, nil
			case status.IsDropped:
				return types.Hash{}, ErrDropped
			case status.IsInvalid:
				return types.Hash{}, ErrInvalid
			case status.IsUsurped:
				return types.Hash{}, ErrUsurped
			}
		case err := <-s.sub.Err():
			return types.Hash{}, fmt.Errorf("extrinsic status subscription: %w", err)
		}
	}
}
