package store

import (
	"sort"
	"strings"

	"github.com/go-redis/redis"
)

// RedisStore keeps values in Redis under "<namespace>:<key>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis endpoint and pings it.
func NewRedisStore(addr, namespace string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{client: client, prefix: namespace + ":"}, nil
}

func (r *RedisStore) Get(key string) (string, bool, error) {
	res, err := r.client.Get(r.prefix + key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return res, true, nil
}

// Set stores the value without expiration; the namespace is wiped explicitly.
func (r *RedisStore) Set(key, value string) error {
	return r.client.Set(r.prefix+key, value, 0).Err()
}

func (r *RedisStore) Remove(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}
	return r.client.Del(prefixed...).Err()
}

func (r *RedisStore) Keys() ([]string, error) {
	res, err := r.client.Keys(r.prefix + "*").Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(res))
	for _, k := range res {
		keys = append(keys, strings.TrimPrefix(k, r.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
