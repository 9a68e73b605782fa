// Package checkpoint persists consumer progress as a single document that is
// read wholesale and rewritten wholesale on every change.
//
// Each Set performs its own fresh read immediately before merging and writing,
// which narrows but does not close the window in which two writers can lose
// each other's update. Concurrent writers get last-writer-wins semantics; no
// compare-and-swap is attempted. Entries are never expired.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/apex/log"
	robopoint "github.com/bdna/robopoint"
	"github.com/bdna/robopoint/internal"
)

// Storage holds the raw checkpoint document.
type Storage interface {
	// Read returns the stored document, or nil if none has been written yet.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the stored document. It either commits all of doc or
	// leaves the previous document in place.
	Write(ctx context.Context, doc []byte) error
	// Location describes where the document lives, for error messages.
	Location() string
}

// Store implements robopoint.Checkpoint over a Storage.
type Store struct {
	storage Storage
	logger  log.Interface
}

var _ robopoint.Checkpoint = (*Store)(nil)

// Option is used to override default values when creating a new Store
type Option func(*Store)

// WithLogger overrides the default logger
func WithLogger(logger log.Interface) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store reading and writing through storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{storage: storage}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = internal.DiscardLogger()
	}
	return s
}

// Load reads the persisted document. A document that does not exist yet loads
// as an empty snapshot; one that exists but cannot be read or parsed is a
// RecoveryReadError.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	b, err := s.storage.Read(ctx)
	if err != nil {
		return nil, &robopoint.RecoveryReadError{Location: s.storage.Location(), Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Snapshot{}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, &robopoint.RecoveryReadError{Location: s.storage.Location(), Err: err}
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// Has reports whether a checkpoint exists for key.
func (s *Store) Has(ctx context.Context, key robopoint.Key) (bool, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return snap.Has(key), nil
}

// Get returns the sequence number for key, or an empty string if there is none.
func (s *Store) Get(ctx context.Context, key robopoint.Key) (string, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	seq, _ := snap.Get(key)
	return seq, nil
}

// Set merges seq into a freshly loaded document and writes it back. Nothing is
// cached between calls, so a failed write is retried from the last durable
// document on the next call.
func (s *Store) Set(ctx context.Context, key robopoint.Key, seq string) error {
	snap, err := s.Load(ctx)
	if err != nil {
		return err
	}
	snap.Set(key, seq)

	b, err := json.Marshal(snap)
	if err != nil {
		return &robopoint.RecoveryWriteError{Location: s.storage.Location(), Err: err}
	}
	if err := s.storage.Write(ctx, b); err != nil {
		return &robopoint.RecoveryWriteError{Location: s.storage.Location(), Err: err}
	}

	s.logger.WithFields(log.Fields{
		"stream":   key.Stream,
		"consumer": key.Consumer,
		"filter":   key.FilterKind,
		"shard_id": key.ShardID,
		"seqnum":   seq,
	}).Debug("checkpoint stored")
	return nil
}
