package checkpoint

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	redis "gopkg.in/redis.v5"
)

// kv is the slice of a redis client the storage needs.
type kv interface {
	get(key string) ([]byte, error)
	set(key string, value []byte) error
}

type redisKV struct {
	client *redis.Client
}

func (r redisKV) get(key string) ([]byte, error) {
	b, err := r.client.Get(key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (r redisKV) set(key string, value []byte) error {
	return r.client.Set(key, value, 0).Err()
}

// RedisStorage keeps the document under a single redis key. The SET that
// replaces it is atomic.
type RedisStorage struct {
	addr   string
	key    string
	client *redis.Client
	kv     kv
}

// NewRedisStorage connects to the redis server at addr and stores the document
// under key.
func NewRedisStorage(addr, key string) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}
	return &RedisStorage{
		addr:   addr,
		key:    key,
		client: client,
		kv:     redisKV{client: client},
	}, nil
}

// Location returns the redis address and key.
func (r *RedisStorage) Location() string {
	return fmt.Sprintf("redis://%s/%s", r.addr, r.key)
}

// Read returns the stored document, or nil if the key is not set.
func (r *RedisStorage) Read(ctx context.Context) ([]byte, error) {
	b, err := r.kv.get(r.key)
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return b, nil
}

// Write replaces the stored document.
func (r *RedisStorage) Write(ctx context.Context, doc []byte) error {
	if err := r.kv.set(r.key, doc); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Close closes the redis connection.
func (r *RedisStorage) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
