// Package journal persists registration attempts in a leveldb database.
//
// Every submission is recorded under its block number together with the
// outcome of the finalization watch. The journal also keeps a watermark of
// the last handled block so a restarted bot never submits twice for the
// same block.
package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	xdr "github.com/nullstyle/go-xdr/xdr3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/zap"

	"github.com/tensorops/regbot/logging"
)

var ErrNotFound = leveldb.ErrNotFound

const lastBlockKey = "last_block"

// Outcome values recorded for an attempt.
const (
	OutcomeSubmitted         = "submitted"
	OutcomeFinalized         = "finalized"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeRecoverable       = "recoverable"
	OutcomeFailed            = "failed"
	OutcomeTooExpensive      = "too_expensive"
)

// Record describes a single registration attempt.
type Record struct {
	Block         uint64
	Slot          uint64
	SubmittedAt   int64
	AttemptID     string
	ExtrinsicHash [32]byte
	BurnCost      uint64
	Outcome       string
	FinalizedIn   [32]byte
}

type Journal struct {
	db *leveldb.DB
}

func Open(path string) (*Journal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal @ %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores the record and advances the last-block watermark in a
// single transaction.
func (j *Journal) Append(ctx context.Context, rec Record) error {
	serialized, err := serializeRecord(rec)
	if err != nil {
		return fmt.Errorf("failed serializing record: %w", err)
	}

	trans, err := j.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := trans.Put(blockKey(rec.Block), serialized, nil); err != nil {
		trans.Discard()
		return fmt.Errorf("storing record for block %d: %w", rec.Block, err)
	}
	watermark, err := serializeBlock(rec.Block)
	if err != nil {
		trans.Discard()
		return fmt.Errorf("failed serializing watermark: %w", err)
	}
	if err := trans.Put([]byte(lastBlockKey), watermark, nil); err != nil {
		trans.Discard()
		return fmt.Errorf("storing watermark: %w", err)
	}
	return trans.Commit()
}

// SetOutcome updates the outcome of a previously appended record once the
// finalization watch resolved.
func (j *Journal) SetOutcome(ctx context.Context, block uint64, outcome string, finalizedIn [32]byte) error {
	rec, err := j.Get(ctx, block)
	if err != nil {
		return err
	}
	rec.Outcome = outcome
	rec.FinalizedIn = finalizedIn
	serialized, err := serializeRecord(*rec)
	if err != nil {
		return fmt.Errorf("failed serializing record: %w", err)
	}
	if err := j.db.Put(blockKey(block), serialized, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("updating record for block %d: %w", block, err)
	}
	return nil
}

// Get returns the record for the given block number.
func (j *Journal) Get(ctx context.Context, block uint64) (*Record, error) {
	data, err := j.db.Get(blockKey(block), nil)
	if err != nil {
		return nil, fmt.Errorf("get record for block %d: %w", block, err)
	}
	rec := &Record{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize: %v", err)
	}
	return rec, nil
}

// LastBlock returns the highest block number an attempt was journaled for,
// or 0 if the journal is empty.
func (j *Journal) LastBlock(ctx context.Context) (uint64, error) {
	data, err := j.db.Get([]byte(lastBlockKey), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("querying watermark: %w", err)
	}
	var block uint64
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &block); err != nil {
		logging.FromContext(ctx).Warn("corrupted watermark in journal", zap.Error(err))
		return 0, fmt.Errorf("failed to deserialize watermark: %v", err)
	}
	return block, nil
}

func blockKey(block uint64) []byte {
	return []byte(strconv.FormatUint(block, 10))
}

func serializeRecord(rec Record) ([]byte, error) {
	var dataBuf bytes.Buffer
	if _, err := xdr.Marshal(&dataBuf, rec); err != nil {
		return nil, fmt.Errorf("serialization failure: %v", err)
	}
	return dataBuf.Bytes(), nil
}

func serializeBlock(block uint64) ([]byte, error) {
	var dataBuf bytes.Buffer
	if _, err := xdr.Marshal(&dataBuf, block); err != nil {
		return nil, fmt.Errorf("serialization failure: %v", err)
	}
	return dataBuf.Bytes(), nil
}
