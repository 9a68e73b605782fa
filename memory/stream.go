// Package memory is an in-process message stream. It buffers accepted
// messages in shards the way Kinesis does and is used for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	robopoint "github.com/bdna/robopoint"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const defaultBatchSize = 100

type entry struct {
	record  robopoint.Record
	arrived time.Time
}

type shard struct {
	id      string
	entries []entry
}

// Stream is a set of named streams, each split into a fixed number of shards.
// It is safe for concurrent use.
type Stream struct {
	mu        sync.RWMutex
	shards    int
	batchSize int
	streams   map[string][]*shard
	now       func() time.Time
}

var (
	_ robopoint.ShardSource = (*Stream)(nil)
	_ robopoint.Producer    = (*Stream)(nil)
)

// New returns a Stream whose streams have the given number of shards.
func New(shards int) *Stream {
	if shards <= 0 {
		shards = 1
	}
	return &Stream{
		shards:    shards,
		batchSize: defaultBatchSize,
		streams:   make(map[string][]*shard),
		now:       time.Now,
	}
}

// Create makes a stream known without writing to it.
func (s *Stream) Create(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.create(stream)
}

func (s *Stream) create(stream string) []*shard {
	if shards, ok := s.streams[stream]; ok {
		return shards
	}
	shards := make([]*shard, s.shards)
	for i := range shards {
		shards[i] = &shard{id: fmt.Sprintf("shardId-%012d", i)}
	}
	s.streams[stream] = shards
	return shards
}

// Put appends msgs, routing each to a shard by a hash of its robo id.
func (s *Stream) Put(ctx context.Context, stream string, msgs []robopoint.Message) error {
	records := make([][]byte, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return errors.Wrapf(err, "marshal message %s", m.ID)
		}
		records[i] = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shards := s.create(stream)
	now := s.now()
	for i, m := range msgs {
		sh := shards[xxhash.Sum64String(m.RoboID)%uint64(len(shards))]
		sh.entries = append(sh.entries, entry{
			record: robopoint.Record{
				SequenceNumber: sequenceNumber(len(sh.entries)),
				PartitionKey:   m.RoboID,
				Data:           records[i],
			},
			arrived: now,
		})
	}
	return nil
}

// ListShards returns the shard ids of stream.
func (s *Stream) ListShards(ctx context.Context, stream string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shards, ok := s.streams[stream]
	if !ok {
		return nil, errors.Errorf("stream %q not found", stream)
	}
	ids := make([]string, len(shards))
	for i, sh := range shards {
		ids[i] = sh.id
	}
	return ids, nil
}

// ShardIterator returns an iterator positioned after afterSeq, or at the
// oldest record.
func (s *Stream) ShardIterator(ctx context.Context, stream, shardID, afterSeq string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.shard(stream, shardID); err != nil {
		return "", err
	}

	pos := 0
	if afterSeq != "" {
		n, err := strconv.Atoi(afterSeq)
		if err != nil {
			return "", errors.Wrapf(err, "invalid sequence number %q", afterSeq)
		}
		pos = n + 1
	}
	return iterator(stream, shardID, pos), nil
}

// GetRecords returns up to one batch of records from the iterator position.
// Lag is the age of the oldest record still unread after this batch.
func (s *Stream) GetRecords(ctx context.Context, it string) (*robopoint.RecordBatch, error) {
	stream, shardID, pos, err := parseIterator(it)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, err := s.shard(stream, shardID)
	if err != nil {
		return nil, err
	}

	end := pos + s.batchSize
	if end > len(sh.entries) {
		end = len(sh.entries)
	}
	if pos > end {
		pos = end
	}

	batch := &robopoint.RecordBatch{
		Records:      make([]*robopoint.Record, 0, end-pos),
		NextIterator: iterator(stream, shardID, end),
	}
	for i := pos; i < end; i++ {
		r := sh.entries[i].record
		batch.Records = append(batch.Records, &r)
	}

	if end < len(sh.entries) {
		lag := s.now().Sub(sh.entries[end].arrived) / time.Millisecond
		batch.MillisBehind = int64(lag)
		if batch.MillisBehind < 1 {
			batch.MillisBehind = 1
		}
	}
	return batch, nil
}

func (s *Stream) shard(stream, shardID string) (*shard, error) {
	for _, sh := range s.streams[stream] {
		if sh.id == shardID {
			return sh, nil
		}
	}
	return nil, errors.Errorf("shard %s of stream %q not found", shardID, stream)
}

// sequenceNumber zero pads positions so that they also sort lexically.
func sequenceNumber(pos int) string {
	return fmt.Sprintf("%020d", pos)
}

func iterator(stream, shardID string, pos int) string {
	return fmt.Sprintf("%s/%s/%d", stream, shardID, pos)
}

func parseIterator(it string) (stream, shardID string, pos int, err error) {
	i := strings.LastIndex(it, "/")
	if i < 0 {
		return "", "", 0, errors.Errorf("invalid shard iterator %q", it)
	}
	j := strings.LastIndex(it[:i], "/")
	if j < 0 {
		return "", "", 0, errors.Errorf("invalid shard iterator %q", it)
	}
	pos, err = strconv.Atoi(it[i+1:])
	if err != nil {
		return "", "", 0, errors.Wrapf(err, "invalid shard iterator %q", it)
	}
	return it[:j], it[j+1 : i], pos, nil
}
