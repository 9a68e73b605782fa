package checkpoint

import robopoint "github.com/bdna/robopoint"

// Snapshot is the whole checkpoint document:
// stream -> consumer -> filter kind -> shard id -> sequence number.
type Snapshot map[string]map[string]map[string]map[string]string

// Get returns the sequence number recorded for key, if any. Every component of
// the key must match; a sibling shard's entry does not count.
func (s Snapshot) Get(key robopoint.Key) (string, bool) {
	seq, ok := s[key.Stream][key.Consumer][key.FilterKind][key.ShardID]
	return seq, ok
}

// Has reports whether a sequence number is recorded for key.
func (s Snapshot) Has(key robopoint.Key) bool {
	_, ok := s.Get(key)
	return ok
}

// Set records seq for key, creating intermediate levels as needed.
func (s Snapshot) Set(key robopoint.Key, seq string) {
	consumers, ok := s[key.Stream]
	if !ok {
		consumers = make(map[string]map[string]map[string]string)
		s[key.Stream] = consumers
	}
	filters, ok := consumers[key.Consumer]
	if !ok {
		filters = make(map[string]map[string]string)
		consumers[key.Consumer] = filters
	}
	shards, ok := filters[key.FilterKind]
	if !ok {
		shards = make(map[string]string)
		filters[key.FilterKind] = shards
	}
	shards[key.ShardID] = seq
}
