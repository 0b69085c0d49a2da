package mqtt

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// faultFunc receives persistence faults. The paho Store interface has no
// error returns, so every backend reports through one of these.
type faultFunc func(err error)

// newStore builds the persistence strategy selected by p.
// Every strategy other than none is wrapped in the bounded policy.
func newStore(p config.PersistConfig, fault faultFunc) pahomqtt.Store {
	var base pahomqtt.Store
	switch p.Kind {
	case config.PersistMemory:
		base = pahomqtt.NewMemoryStore()
	case config.PersistFile:
		base = pahomqtt.NewFileStore(p.Dir)
	case config.PersistRedis:
		base = newRedisStore(p.Addr, p.Key, fault)
	case config.PersistSQLite:
		base = newSQLiteStore(p.Path, fault)
	default:
		return nullStore{}
	}
	return newBoundedStore(base, p, fault)
}

// boundedStore applies the count limit and duplicate policy of a
// PersistConfig on top of any paho store. It tracks keys in insertion order
// so eviction drops the oldest packet.
type boundedStore struct {
	next   pahomqtt.Store
	policy config.PersistConfig
	fault  faultFunc

	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

func newBoundedStore(next pahomqtt.Store, policy config.PersistConfig, fault faultFunc) *boundedStore {
	return &boundedStore{
		next:   next,
		policy: policy,
		fault:  fault,
		index:  make(map[string]struct{}),
	}
}

// Open opens the backend and adopts the keys it already holds.
func (s *boundedStore) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next.Open()
	keys := s.next.All()
	slices.Sort(keys)
	s.order = s.order[:0]
	clear(s.index)
	for _, k := range keys {
		s.track(k)
	}
}

// Put stores m under key unless the policy says otherwise.
// A rejection is reported after the lock is released, since the fault
// handler may call back into the client.
func (s *boundedStore) Put(key string, m packets.ControlPacket) {
	if err := s.put(key, m); err != nil {
		s.report(err)
	}
}

func (s *boundedStore) put(key string, m packets.ControlPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[key]; exists {
		if s.policy.ReplaceDuplicate {
			s.next.Put(key, m)
		}
		return nil
	}

	if limit := s.policy.MaxCount; limit > 0 && len(s.order) >= limit {
		if !s.policy.EvictOnExceed {
			return fmt.Errorf("%w: %d packets stored, dropping %s", ErrStoreFull, limit, key)
		}
		oldest := s.order[0]
		s.next.Del(oldest)
		s.untrack(oldest)
	}

	s.next.Put(key, m)
	s.track(key)
	return nil
}

func (s *boundedStore) Get(key string) packets.ControlPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Get(key)
}

// All returns the stored keys, oldest first.
func (s *boundedStore) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

func (s *boundedStore) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.Del(key)
	s.untrack(key)
}

func (s *boundedStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.Close()
}

func (s *boundedStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.Reset()
	s.order = s.order[:0]
	clear(s.index)
}

// Len returns the number of tracked packets.
func (s *boundedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *boundedStore) track(key string) {
	if _, exists := s.index[key]; exists {
		return
	}
	s.index[key] = struct{}{}
	s.order = append(s.order, key)
}

func (s *boundedStore) untrack(key string) {
	if _, exists := s.index[key]; !exists {
		return
	}
	delete(s.index, key)
	if i := slices.Index(s.order, key); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

func (s *boundedStore) report(err error) {
	if s.fault != nil {
		s.fault(err)
	}
}

// nullStore keeps nothing. It replaces paho's default memory store when a
// client selects no persistence.
type nullStore struct{}

func (nullStore) Open()                             {}
func (nullStore) Put(string, packets.ControlPacket) {}
func (nullStore) Get(string) packets.ControlPacket  { return nil }
func (nullStore) All() []string                     { return nil }
func (nullStore) Del(string)                        {}
func (nullStore) Close()                            {}
func (nullStore) Reset()                            {}

// encodePacket serializes a control packet in its wire form.
func encodePacket(m packets.ControlPacket) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodePacket parses a packet written by encodePacket.
func decodePacket(data []byte) (packets.ControlPacket, error) {
	return packets.ReadPacket(bytes.NewReader(data))
}
