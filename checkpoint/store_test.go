package checkpoint_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	robopoint "github.com/bdna/robopoint"
	"github.com/bdna/robopoint/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alertsKey = robopoint.Key{
		Stream:     "robocloud",
		Consumer:   "robo-1",
		FilterKind: "by-purpose:alerts",
		ShardID:    "shardId-000000000000",
	}
	originKey = robopoint.Key{
		Stream:     "robocloud",
		Consumer:   "robo-1",
		FilterKind: "by-origin",
		ShardID:    "shardId-000000000000",
	}
)

func newFileStore(t *testing.T) (*checkpoint.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recovery.json")
	return checkpoint.New(checkpoint.NewFileStorage(path)), path
}

func TestStore_LoadWithoutDocument(t *testing.T) {
	store, _ := newFileStore(t)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestStore_LoadEmptyFile(t *testing.T) {
	store, path := newFileStore(t)
	require.NoError(t, ioutil.WriteFile(path, nil, 0644))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	require.NoError(t, store.Set(ctx, alertsKey, "49590338271490256608559692538361571095921575989136588898"))

	reopened := checkpoint.New(checkpoint.NewFileStorage(path))
	seq, err := reopened.Get(ctx, alertsKey)
	require.NoError(t, err)
	assert.Equal(t, "49590338271490256608559692538361571095921575989136588898", seq)

	snap, err := reopened.Load(ctx)
	require.NoError(t, err)
	got, ok := snap.Get(alertsKey)
	assert.True(t, ok)
	assert.Equal(t, "49590338271490256608559692538361571095921575989136588898", got)
}

func TestStore_DocumentLayout(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	require.NoError(t, store.Set(ctx, alertsKey, "7"))

	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"robocloud":{"robo-1":{"by-purpose:alerts":{"shardId-000000000000":"7"}}}}`, string(b))
}

func TestStore_Has(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)

	has, err := store.Has(ctx, alertsKey)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Set(ctx, alertsKey, "1"))

	has, err = store.Has(ctx, alertsKey)
	require.NoError(t, err)
	assert.True(t, has)

	sibling := alertsKey
	sibling.ShardID = "shardId-000000000001"
	has, err = store.Has(ctx, sibling)
	require.NoError(t, err)
	assert.False(t, has, "a sibling shard has no checkpoint of its own")
}

func TestStore_SetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	require.NoError(t, store.Set(ctx, alertsKey, "42"))
	once, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, alertsKey, "42"))
	twice, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(once), string(twice))
}

func TestStore_FilterKindsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)

	require.NoError(t, store.Set(ctx, originKey, "10"))
	require.NoError(t, store.Set(ctx, alertsKey, "20"))
	require.NoError(t, store.Set(ctx, alertsKey, "30"))

	seq, err := store.Get(ctx, originKey)
	require.NoError(t, err)
	assert.Equal(t, "10", seq)

	seq, err = store.Get(ctx, alertsKey)
	require.NoError(t, err)
	assert.Equal(t, "30", seq)
}

func TestStore_UnreadableDocument(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.New(checkpoint.NewFileStorage(dir))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.IsType(t, &robopoint.RecoveryReadError{}, err)
	assert.Equal(t, robopoint.ClassCritical, robopoint.Classify(err))
}

func TestStore_CorruptDocument(t *testing.T) {
	store, path := newFileStore(t)
	require.NoError(t, ioutil.WriteFile(path, []byte(`{"robocloud":`), 0644))

	_, err := store.Get(context.Background(), alertsKey)
	require.Error(t, err)
	assert.IsType(t, &robopoint.RecoveryReadError{}, err)
}

func TestStore_FailedWriteKeepsDurableState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "recovery.json")
	store := checkpoint.New(checkpoint.NewFileStorage(path))

	err := store.Set(ctx, alertsKey, "1")
	require.Error(t, err)
	assert.IsType(t, &robopoint.RecoveryWriteError{}, err)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "state"), 0755))

	has, err := store.Has(ctx, alertsKey)
	require.NoError(t, err)
	assert.False(t, has, "a failed write must not be visible afterwards")

	require.NoError(t, store.Set(ctx, alertsKey, "1"))
	seq, err := store.Get(ctx, alertsKey)
	require.NoError(t, err)
	assert.Equal(t, "1", seq)
}

func TestStore_PreservesOtherEntries(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)
	require.NoError(t, ioutil.WriteFile(path, []byte(`{"other":{"robo-9":{"by-origin":{"s-1":"5"}}}}`), 0644))

	require.NoError(t, store.Set(ctx, alertsKey, "8"))

	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"other":{"robo-9":{"by-origin":{"s-1":"5"}}},
		"robocloud":{"robo-1":{"by-purpose:alerts":{"shardId-000000000000":"8"}}}
	}`, string(b))
}
