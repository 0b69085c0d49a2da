package mqtt

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// publishPacket returns a QoS 1 PUBLISH carrying payload.
func publishPacket(id uint16, payload string) *packets.PublishPacket {
	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.Qos = 1
	p.TopicName = "sensors/kitchen/temp"
	p.MessageID = id
	p.Payload = []byte(payload)
	return p
}

func payloadOf(t *testing.T, m packets.ControlPacket) string {
	t.Helper()
	p, ok := m.(*packets.PublishPacket)
	if !ok {
		t.Fatalf("stored packet = %T, want *packets.PublishPacket", m)
	}
	return string(p.Payload)
}

// faultRecorder collects persistence faults.
type faultRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *faultRecorder) report(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *faultRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func openBounded(t *testing.T, policy config.PersistConfig) (*boundedStore, *faultRecorder) {
	t.Helper()
	faults := &faultRecorder{}
	s := newBoundedStore(pahomqtt.NewMemoryStore(), policy, faults.report)
	s.Open()
	t.Cleanup(s.Close)
	return s, faults
}

// =============================================================================
// Bounded Policy Tests
// =============================================================================

func TestBoundedStoreUnbounded(t *testing.T) {
	s, faults := openBounded(t, config.PersistConfig{Kind: config.PersistMemory})

	for i := range 100 {
		s.Put(fmt.Sprintf("o.%d", i+1), publishPacket(uint16(i+1), "x"))
	}

	if s.Len() != 100 {
		t.Errorf("Len() = %d, want 100", s.Len())
	}
	if len(faults.all()) != 0 {
		t.Errorf("faults = %v, want none", faults.all())
	}
}

func TestBoundedStoreEvictsOldest(t *testing.T) {
	s, faults := openBounded(t, config.PersistConfig{Kind: config.PersistMemory, MaxCount: 2, EvictOnExceed: true})

	s.Put("o.1", publishPacket(1, "a"))
	s.Put("o.2", publishPacket(2, "b"))
	s.Put("o.3", publishPacket(3, "c"))

	if got := s.All(); !slices.Equal(got, []string{"o.2", "o.3"}) {
		t.Errorf("All() = %v, want [o.2 o.3]", got)
	}
	if m := s.Get("o.1"); m != nil {
		t.Errorf("Get(o.1) = %v, want evicted", m)
	}
	if len(faults.all()) != 0 {
		t.Errorf("faults = %v, want none for eviction", faults.all())
	}
}

func TestBoundedStoreRejectsWhenFull(t *testing.T) {
	s, faults := openBounded(t, config.PersistConfig{Kind: config.PersistMemory, MaxCount: 1})

	s.Put("o.1", publishPacket(1, "kept"))
	s.Put("o.2", publishPacket(2, "rejected"))

	if got := s.All(); !slices.Equal(got, []string{"o.1"}) {
		t.Errorf("All() = %v, want [o.1]", got)
	}
	errs := faults.all()
	if len(errs) != 1 || !errors.Is(errs[0], ErrStoreFull) {
		t.Errorf("faults = %v, want one ErrStoreFull", errs)
	}
}

func TestBoundedStoreDuplicatePolicy(t *testing.T) {
	tests := []struct {
		name    string
		replace bool
		want    string
	}{
		{"keep stored", false, "first"},
		{"replace", true, "second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := openBounded(t, config.PersistConfig{Kind: config.PersistMemory, MaxCount: 1, ReplaceDuplicate: tt.replace})

			s.Put("o.1", publishPacket(1, "first"))
			s.Put("o.1", publishPacket(1, "second"))

			if got := payloadOf(t, s.Get("o.1")); got != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
			if s.Len() != 1 {
				t.Errorf("Len() = %d, want 1", s.Len())
			}
		})
	}
}

func TestBoundedStoreDelAndReset(t *testing.T) {
	s, _ := openBounded(t, config.PersistConfig{Kind: config.PersistMemory, MaxCount: 2})

	s.Put("o.1", publishPacket(1, "a"))
	s.Put("o.2", publishPacket(2, "b"))
	s.Del("o.1")
	s.Put("o.3", publishPacket(3, "c"))

	if got := s.All(); !slices.Equal(got, []string{"o.2", "o.3"}) {
		t.Errorf("All() after Del = %v, want [o.2 o.3]", got)
	}

	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", s.Len())
	}
}

func TestBoundedStoreAdoptsExistingKeys(t *testing.T) {
	dir := t.TempDir()
	policy := config.PersistConfig{Kind: config.PersistFile, Dir: dir, MaxCount: 2, EvictOnExceed: true}

	first := newBoundedStore(pahomqtt.NewFileStore(dir), policy, nil)
	first.Open()
	first.Put("o.1", publishPacket(1, "a"))
	first.Put("o.2", publishPacket(2, "b"))
	first.Close()

	second := newBoundedStore(pahomqtt.NewFileStore(dir), policy, nil)
	second.Open()
	defer second.Close()

	if second.Len() != 2 {
		t.Fatalf("Len() after reopen = %d, want 2", second.Len())
	}
	second.Put("o.3", publishPacket(3, "c"))
	if got := second.All(); !slices.Equal(got, []string{"o.2", "o.3"}) {
		t.Errorf("All() = %v, want [o.2 o.3]", got)
	}
}

// =============================================================================
// Strategy Selection Tests
// =============================================================================

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		persist config.PersistConfig
		bounded bool
	}{
		{"unset", config.PersistConfig{}, false},
		{"none", config.PersistConfig{Kind: config.PersistNone}, false},
		{"memory", config.PersistConfig{Kind: config.PersistMemory}, true},
		{"file", config.PersistConfig{Kind: config.PersistFile, Dir: t.TempDir()}, true},
		{"redis", config.PersistConfig{Kind: config.PersistRedis, Addr: "127.0.0.1:6379"}, true},
		{"sqlite", config.PersistConfig{Kind: config.PersistSQLite, Path: filepath.Join(t.TempDir(), "q.db")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(tt.persist, nil)
			_, bounded := s.(*boundedStore)
			if bounded != tt.bounded {
				t.Errorf("newStore() = %T, bounded %v, want %v", s, bounded, tt.bounded)
			}
		})
	}
}

func TestNullStoreKeepsNothing(t *testing.T) {
	var s nullStore
	s.Open()
	s.Put("o.1", publishPacket(1, "x"))

	if s.Get("o.1") != nil || len(s.All()) != 0 {
		t.Error("nullStore retained a packet")
	}
}

func TestPacketCodecRoundTrip(t *testing.T) {
	data, err := encodePacket(publishPacket(9, "\x00\x01\x02"))
	if err != nil {
		t.Fatalf("encodePacket() error = %v", err)
	}
	m, err := decodePacket(data)
	if err != nil {
		t.Fatalf("decodePacket() error = %v", err)
	}
	p := m.(*packets.PublishPacket)
	if p.MessageID != 9 || p.TopicName != "sensors/kitchen/temp" || string(p.Payload) != "\x00\x01\x02" {
		t.Errorf("decoded = id %d topic %q payload %q", p.MessageID, p.TopicName, p.Payload)
	}
}
