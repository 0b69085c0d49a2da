package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/redis/go-redis/v9"
)

const (
	// defaultRedisKey is the hash used when the client names none.
	defaultRedisKey = "libmqtt:packets"

	// redisOpTimeout bounds every store operation.
	redisOpTimeout = 3 * time.Second
)

var errStoreClosed = errors.New("store not open")

// redisStore keeps packets as fields of one Redis hash.
type redisStore struct {
	addr  string
	key   string
	fault faultFunc

	mu  sync.Mutex
	rdb *redis.Client
}

func newRedisStore(addr, key string, fault faultFunc) *redisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &redisStore{addr: addr, key: key, fault: fault}
}

func (s *redisStore) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rdb != nil {
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: s.addr})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		s.report("open", err)
		return
	}
	s.rdb = rdb
}

func (s *redisStore) Put(key string, m packets.ControlPacket) {
	data, err := encodePacket(m)
	if err != nil {
		s.report("encode "+key, err)
		return
	}
	s.do("put "+key, func(ctx context.Context, rdb *redis.Client) error {
		return rdb.HSet(ctx, s.key, key, data).Err()
	})
}

func (s *redisStore) Get(key string) packets.ControlPacket {
	var m packets.ControlPacket
	s.do("get "+key, func(ctx context.Context, rdb *redis.Client) error {
		data, err := rdb.HGet(ctx, s.key, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		m, err = decodePacket(data)
		return err
	})
	return m
}

func (s *redisStore) All() []string {
	var keys []string
	s.do("list", func(ctx context.Context, rdb *redis.Client) error {
		var err error
		keys, err = rdb.HKeys(ctx, s.key).Result()
		return err
	})
	return keys
}

func (s *redisStore) Del(key string) {
	s.do("delete "+key, func(ctx context.Context, rdb *redis.Client) error {
		return rdb.HDel(ctx, s.key, key).Err()
	})
}

func (s *redisStore) Reset() {
	s.do("reset", func(ctx context.Context, rdb *redis.Client) error {
		return rdb.Del(ctx, s.key).Err()
	})
}

func (s *redisStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rdb == nil {
		return
	}
	if err := s.rdb.Close(); err != nil {
		s.report("close", err)
	}
	s.rdb = nil
}

// do runs op against the open client. Operations on a closed store are
// reported rather than silently lost.
func (s *redisStore) do(what string, op func(ctx context.Context, rdb *redis.Client) error) {
	s.mu.Lock()
	rdb := s.rdb
	s.mu.Unlock()

	if rdb == nil {
		s.report(what, errStoreClosed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := op(ctx, rdb); err != nil {
		s.report(what, err)
	}
}

func (s *redisStore) report(what string, err error) {
	if s.fault != nil {
		s.fault(fmt.Errorf("%w: redis %s: %w", ErrPersistFailed, what, err))
	}
}
