package raft

import "sync"

// manualTransport captures every outbound RPC instead of sending it
// anywhere, so unit tests can drive responses by hand.
type manualTransport struct {
	mu          sync.Mutex
	voteCalls   []capturedVoteCall
	appendCalls []capturedAppendCall
}

type capturedVoteCall struct {
	peer       PeerId
	args       RequestVoteArgs
	onResponse func(RequestVoteReply, error)
}

type capturedAppendCall struct {
	peer       PeerId
	args       AppendEntriesArgs
	onResponse func(AppendEntriesReply, error)
}

func newManualTransport() *manualTransport {
	return &manualTransport{}
}

func (t *manualTransport) SendRequestVote(peer PeerId, args RequestVoteArgs, onResponse func(RequestVoteReply, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.voteCalls = append(t.voteCalls, capturedVoteCall{peer: peer, args: args, onResponse: onResponse})
}

func (t *manualTransport) SendAppendEntries(peer PeerId, args AppendEntriesArgs, onResponse func(AppendEntriesReply, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendCalls = append(t.appendCalls, capturedAppendCall{peer: peer, args: args, onResponse: onResponse})
}

func (t *manualTransport) lastAppendTo(peer PeerId) (capturedAppendCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.appendCalls) - 1; i >= 0; i-- {
		if t.appendCalls[i].peer == peer {
			return t.appendCalls[i], true
		}
	}
	return capturedAppendCall{}, false
}

// newUnitEngine builds an Engine with a manualTransport and puts it in
// Follower state without starting its actor goroutine, so tests can call
// unexported methods directly and synchronously.
func newUnitEngine(self PeerId, peers []PeerId, cfg EngineCfg) (*Engine, *fakeLog, *fakeStateMachine, *manualTransport) {
	log := newFakeLog()
	sm := newFakeStateMachine()
	transport := newManualTransport()

	e := NewEngine(log, sm, transport, cfg)
	e.SetPeerId(self)
	for _, p := range peers {
		e.AddPeer(p)
	}

	e.role = RoleFollower
	e.rescheduleElection()

	return e, log, sm, transport
}

// processAllPending drains and processes every currently queued
// outbound-response event without running the actor loop.
func processAllPending(e *Engine) {
	for {
		select {
		case ev := <-e.voteResponseCh:
			e.onRequestVoteResponse(ev)
		case ev := <-e.appendResponseCh:
			e.onAppendEntriesResponse(ev)
		default:
			return
		}
	}
}
