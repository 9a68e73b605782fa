package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	"github.com/bdna/robopoint/config"
	"github.com/bdna/robopoint/dynamostreams"
	"github.com/bdna/robopoint/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		desc   string
		cfg    config.Log
		expErr bool
	}{
		{desc: "JSON output", cfg: config.Log{Level: "info", Format: "json"}},
		{desc: "Text output", cfg: config.Log{Level: "debug", Format: "text"}},
		{desc: "Unknown level", cfg: config.Log{Level: "loud", Format: "json"}, expErr: true},
		{desc: "Unknown format", cfg: config.Log{Level: "info", Format: "xml"}, expErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(tc.cfg, &buf)
			if tc.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.WithField("shard_id", "shard-0").Warn("hello")
			assert.Contains(t, buf.String(), "shard-0")
		})
	}
}

func TestNewBackend_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.StreamName = "robocloud"
	cfg.Backend = config.BackendMemory

	b, err := newBackend(cfg, log.Log)
	require.NoError(t, err)

	shards, err := b.source.ListShards(context.Background(), "robocloud")
	require.NoError(t, err)
	assert.Len(t, shards, cfg.Read.MemoryShards)
	assert.IsType(t, &memory.Stream{}, b.producer)
}

func TestNewBackend_DynamoDB(t *testing.T) {
	cfg := config.Default()
	cfg.StreamName = "robocloud"
	cfg.Backend = config.BackendDynamoDB
	cfg.DynamoDB.Region = "eu-west-1"
	cfg.DynamoDB.IteratorType = "LATEST"

	b, err := newBackend(cfg, log.Log)
	require.NoError(t, err)
	assert.IsType(t, &dynamostreams.Stream{}, b.source)
	assert.Equal(t, b.source, b.producer)
}

func TestNewStorage_File(t *testing.T) {
	cfg := config.Default()
	cfg.Checkpoint.File = filepath.Join(t.TempDir(), "recovery.json")

	s, closeStorage, err := newStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer closeStorage()
	assert.Equal(t, cfg.Checkpoint.File, s.Location())
}

func TestNewStorage_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Checkpoint.Driver = "etcd"

	_, _, err := newStorage(context.Background(), cfg)
	assert.Error(t, err)
}
