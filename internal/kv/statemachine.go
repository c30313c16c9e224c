package kv

import (
	"sync"

	"github.com/coreraft/raft/pkg/raft"
)

// StateMachine is the reference raft.StateMachine for this package: it
// applies PutOp/DeleteOp commands to an in-memory table and exposes it
// for reads via Get/Snapshot.
type StateMachine struct {
	mu    sync.Mutex
	index raft.LogIndex
	store *store
}

func NewStateMachine() *StateMachine {
	return &StateMachine{store: newStore()}
}

func (m *StateMachine) Index() raft.LogIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

func (m *StateMachine) Apply(index raft.LogIndex, term raft.Term) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = index
}

func (m *StateMachine) Reset() {
	m.mu.Lock()
	m.index = 0
	m.mu.Unlock()
	m.store.reset()
}

// Get reads a key. It does not go through raft: the returned value may
// be stale with respect to entries not yet applied locally, per this
// system's read consistency model.
func (m *StateMachine) Get(key string) (string, bool) {
	return m.store.Get(key)
}

// Snapshot returns every key/value pair currently held. Used to serve
// key-listing requests.
func (m *StateMachine) Snapshot() map[string]string {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	out := make(map[string]string, len(m.store.entries))
	for k, v := range m.store.entries {
		out[k] = v
	}
	return out
}
