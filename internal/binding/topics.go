package binding

import (
	"sort"
	"sync"
)

type topicKey struct {
	id    ClientID
	topic string
}

// TopicTable maps (client, topic filter) pairs to host handler targets.
//
// Targets are looked up at dispatch time, so replacing a handler takes effect
// for the next message without re-routing the engine.
type TopicTable struct {
	mu       sync.RWMutex
	handlers map[topicKey]Target
}

// NewTopicTable returns an empty table.
func NewTopicTable() *TopicTable {
	return &TopicTable{handlers: make(map[topicKey]Target)}
}

// Set binds target to (id, topic) and reports whether it replaced a binding.
func (t *TopicTable) Set(id ClientID, topic string, target Target) bool {
	key := topicKey{id: id, topic: topic}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, replaced := t.handlers[key]
	t.handlers[key] = target
	return replaced
}

// Lookup returns the target bound to (id, topic), or nil.
func (t *TopicTable) Lookup(id ClientID, topic string) Target {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handlers[topicKey{id: id, topic: topic}]
}

// Topics returns the filters bound for id in lexical order.
func (t *TopicTable) Topics(id ClientID) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var topics []string
	for k := range t.handlers {
		if k.id == id {
			topics = append(topics, k.topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// DropClient removes every binding of id and returns how many there were.
func (t *TopicTable) DropClient(id ClientID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.handlers {
		if k.id == id {
			delete(t.handlers, k)
			n++
		}
	}
	return n
}

// Len returns the number of bindings across all clients.
func (t *TopicTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}
