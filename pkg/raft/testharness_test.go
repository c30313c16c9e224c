package raft

import (
	"fmt"
	"sync"
	"time"
)

// fakeLog is a minimal in-memory Log used by every test in this
// package. It is deliberately naive (no persistence) and only needs to
// satisfy the Log contract precisely enough to exercise the engine.
type fakeLog struct {
	mu          sync.Mutex
	entries     []LogEntry
	commitIndex LogIndex
}

func newFakeLog() *fakeLog {
	return &fakeLog{}
}

func (l *fakeLog) LastIndex() LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LogIndex(len(l.entries))
}

func (l *fakeLog) LastTerm() Term {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

func (l *fakeLog) TermAt(index LogIndex) Term {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index == 0 || int(index) > len(l.entries) {
		return 0
	}
	return l.entries[index-1].Term
}

func (l *fakeLog) CommitIndex() LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitIndex
}

func (l *fakeLog) SetCommitIndex(index LogIndex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index > l.commitIndex {
		l.commitIndex = index
	}
}

func (l *fakeLog) Append(term Term, command Command) (LogIndex, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	index := LogIndex(len(l.entries) + 1)
	l.entries = append(l.entries, LogEntry{Index: index, Term: term, Command: command})
	return index, true
}

func (l *fakeLog) AppendEntry(entry LogEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Index == 0 {
		return false
	}

	if int(entry.Index) <= len(l.entries) {
		if l.entries[entry.Index-1].Term == entry.Term {
			return true
		}
		l.entries = l.entries[:entry.Index-1]
	}

	if int(entry.Index) != len(l.entries)+1 {
		return false
	}

	l.entries = append(l.entries, entry)
	return true
}

func (l *fakeLog) IsConsistentWith(index LogIndex, term Term) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index == 0 {
		return true
	}
	if int(index) > len(l.entries) {
		return false
	}
	return l.entries[index-1].Term == term
}

func (l *fakeLog) EntriesFrom(start LogIndex, maxCount int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start == 0 {
		start = 1
	}
	if int(start) > len(l.entries) {
		return nil
	}

	end := int(start) - 1 + maxCount
	if end > len(l.entries) {
		end = len(l.entries)
	}

	out := make([]LogEntry, end-int(start)+1)
	copy(out, l.entries[start-1:end])
	return out
}

func (l *fakeLog) Entry(index LogIndex) LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[index-1]
}

func (l *fakeLog) snapshotEntries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// fakeStateMachine records applied command values in order.
type fakeStateMachine struct {
	mu     sync.Mutex
	index  LogIndex
	values []int
}

func newFakeStateMachine() *fakeStateMachine {
	return &fakeStateMachine{}
}

func (m *fakeStateMachine) Index() LogIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

func (m *fakeStateMachine) Apply(index LogIndex, term Term) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = index
}

func (m *fakeStateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = 0
	m.values = nil
}

func (m *fakeStateMachine) appliedValues() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.values))
	copy(out, m.values)
	return out
}

// testCommand is a Command whose effect is recording its value on the
// concrete *fakeStateMachine it is applied to.
type testCommand struct {
	value int
}

func (c testCommand) ApplyTo(sm StateMachine) {
	fsm := sm.(*fakeStateMachine)
	fsm.mu.Lock()
	fsm.values = append(fsm.values, c.value)
	fsm.mu.Unlock()
}

// fakeNetwork wires a set of engines together for end-to-end tests. Each
// send happens on its own goroutine and delivers by calling the target
// engine's exported Handle* methods directly, matching the "asynchronous,
// at most once" contract of RPCTransport.
type fakeNetwork struct {
	mu           sync.Mutex
	engines      map[PeerId]*Engine
	blocked      map[[2]PeerId]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		engines: make(map[PeerId]*Engine),
		blocked: make(map[[2]PeerId]bool),
	}
}

func (n *fakeNetwork) register(id PeerId, e *Engine) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engines[id] = e
}

func (n *fakeNetwork) isolate(id PeerId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for other := range n.engines {
		if other == id {
			continue
		}
		n.blocked[[2]PeerId{id, other}] = true
		n.blocked[[2]PeerId{other, id}] = true
	}
}

func (n *fakeNetwork) heal(id PeerId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for other := range n.engines {
		delete(n.blocked, [2]PeerId{id, other})
		delete(n.blocked, [2]PeerId{other, id})
	}
}

func (n *fakeNetwork) dropped(from, to PeerId) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blocked[[2]PeerId{from, to}]
}

func (n *fakeNetwork) target(id PeerId) *Engine {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engines[id]
}

func (n *fakeNetwork) transportFor(from PeerId) *fakeTransport {
	return &fakeTransport{from: from, net: n}
}

type fakeTransport struct {
	from PeerId
	net  *fakeNetwork
}

func (t *fakeTransport) SendRequestVote(peer PeerId, args RequestVoteArgs, onResponse func(RequestVoteReply, error)) {
	go func() {
		if t.net.dropped(t.from, peer) {
			return
		}
		target := t.net.target(peer)
		if target == nil {
			onResponse(RequestVoteReply{}, fmt.Errorf("unknown peer %s", peer))
			return
		}
		reply := target.HandleRequestVote(args)
		if t.net.dropped(peer, t.from) {
			return
		}
		onResponse(reply, nil)
	}()
}

func (t *fakeTransport) SendAppendEntries(peer PeerId, args AppendEntriesArgs, onResponse func(AppendEntriesReply, error)) {
	go func() {
		if t.net.dropped(t.from, peer) {
			return
		}
		target := t.net.target(peer)
		if target == nil {
			onResponse(AppendEntriesReply{}, fmt.Errorf("unknown peer %s", peer))
			return
		}
		reply := target.HandleAppendEntries(args)
		if t.net.dropped(peer, t.from) {
			return
		}
		onResponse(reply, nil)
	}()
}

func waitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return condition()
}

// fastCfg returns tunables small enough for tests to converge quickly
// while still exercising the real timing logic.
func fastCfg() EngineCfg {
	return EngineCfg{
		ElectionTimeoutFixed:  20 * time.Millisecond,
		ElectionTimeoutRandom: 30 * time.Millisecond,
		HeartbeatInterval:     8 * time.Millisecond,
		TickInterval:          2 * time.Millisecond,
		MaxEntriesPerRequest:  250,
		AppendTimeout:         40 * time.Millisecond,
	}
}

// newCluster builds n fully-connected engines, each with its own fake
// log and state machine, wired through a shared fakeNetwork.
func newCluster(n int) ([]*Engine, []*fakeLog, []*fakeStateMachine, *fakeNetwork) {
	net := newFakeNetwork()

	ids := make([]PeerId, n)
	for i := range ids {
		ids[i] = PeerId(fmt.Sprintf("node-%d", i+1))
	}

	engines := make([]*Engine, n)
	logs := make([]*fakeLog, n)
	sms := make([]*fakeStateMachine, n)

	for i, id := range ids {
		logs[i] = newFakeLog()
		sms[i] = newFakeStateMachine()

		cfg := fastCfg()
		e := NewEngine(logs[i], sms[i], net.transportFor(id), cfg)
		e.SetPeerId(id)

		engines[i] = e
		net.register(id, e)
	}

	for i, e := range engines {
		for j, id := range ids {
			if j == i {
				continue
			}
			e.AddPeer(id)
		}
	}

	return engines, logs, sms, net
}

func startAll(engines []*Engine) {
	for _, e := range engines {
		e.Start(nil)
	}
}

func stopAll(engines []*Engine) {
	for _, e := range engines {
		e.Stop()
	}
}

func findLeader(engines []*Engine) *Engine {
	for _, e := range engines {
		if e.Role() == RoleLeader {
			return e
		}
	}
	return nil
}

func countLeaders(engines []*Engine) int {
	count := 0
	for _, e := range engines {
		if e.Role() == RoleLeader {
			count++
		}
	}
	return count
}
