package raft

import (
	"testing"
	"time"
)

func makeLeader(t *testing.T, self PeerId, peers []PeerId, cfg EngineCfg) (*Engine, *fakeLog, *manualTransport) {
	t.Helper()

	e, log, _, transport := newUnitEngine(self, peers, cfg)
	e.callElection()
	for _, call := range transport.voteCalls {
		call.onResponse(RequestVoteReply{Term: e.currentTerm, VoteGranted: true}, nil)
	}
	processAllPending(e)

	if e.role != RoleLeader {
		t.Fatalf("setup: role = %v, want Leader", e.role)
	}

	return e, log, transport
}

func TestDispatchAppendSendsHeartbeatWhenNothingNew(t *testing.T) {
	_, _, transport := makeLeader(t, "a", []PeerId{"b"}, fastCfg())

	call, ok := transport.lastAppendTo("b")
	if !ok {
		t.Fatalf("expected an initial AppendEntries on becoming leader")
	}
	if len(call.args.Entries) != 0 {
		t.Fatalf("expected heartbeat with no entries, got %d", len(call.args.Entries))
	}
}

func TestAppendEntriesSuccessAdvancesMatchAndNextIndex(t *testing.T) {
	e, log, transport := makeLeader(t, "a", []PeerId{"b"}, fastCfg())

	log.Append(e.currentTerm, testCommand{1})
	p := e.peers["b"]
	p.appendPending = false // allow a fresh dispatch
	e.maybeDispatchAppend(p, time.Now())

	call, ok := transport.lastAppendTo("b")
	if !ok || len(call.args.Entries) != 1 {
		t.Fatalf("expected an AppendEntries carrying 1 entry, got %+v", call)
	}

	call.onResponse(AppendEntriesReply{Term: e.currentTerm, Success: true, LastLogIndex: 1}, nil)
	processAllPending(e)

	if p.matchIndex != 1 || p.nextIndex != 2 {
		t.Fatalf("matchIndex=%d nextIndex=%d, want 1/2", p.matchIndex, p.nextIndex)
	}
}

func TestAppendEntriesRejectionRewindsNextIndex(t *testing.T) {
	e, log, transport := makeLeader(t, "a", []PeerId{"b"}, fastCfg())

	for i := 0; i < 5; i++ {
		log.Append(e.currentTerm, testCommand{i})
	}

	p := e.peers["b"]
	p.nextIndex = 6
	p.appendPending = false
	e.maybeDispatchAppend(p, time.Now())

	call, ok := transport.lastAppendTo("b")
	if !ok {
		t.Fatalf("expected a dispatch")
	}

	// Follower reports it only has up to index 2.
	call.onResponse(AppendEntriesReply{Term: e.currentTerm, Success: false, LastLogIndex: 2}, nil)
	processAllPending(e)

	if p.nextIndex != 2 {
		t.Fatalf("nextIndex = %d, want 2 after rewind to peer's last log index", p.nextIndex)
	}
}

func TestAppendEntriesRejectionDecrementsWhenPeerAhead(t *testing.T) {
	e, log, transport := makeLeader(t, "a", []PeerId{"b"}, fastCfg())

	for i := 0; i < 5; i++ {
		log.Append(e.currentTerm, testCommand{i})
	}

	p := e.peers["b"]
	p.nextIndex = 3
	p.appendPending = false
	e.maybeDispatchAppend(p, time.Now())

	call, ok := transport.lastAppendTo("b")
	if !ok {
		t.Fatalf("expected a dispatch")
	}

	call.onResponse(AppendEntriesReply{Term: e.currentTerm, Success: false, LastLogIndex: 5}, nil)
	processAllPending(e)

	if p.nextIndex != 2 {
		t.Fatalf("nextIndex = %d, want decremented to 2", p.nextIndex)
	}
}

func TestNextIndexNeverGoesBelowOne(t *testing.T) {
	e, _, transport := makeLeader(t, "a", []PeerId{"b"}, fastCfg())

	p := e.peers["b"]
	p.nextIndex = 1
	p.appendPending = false
	e.maybeDispatchAppend(p, time.Now())

	call, _ := transport.lastAppendTo("b")
	call.onResponse(AppendEntriesReply{Term: e.currentTerm, Success: false, LastLogIndex: 0}, nil)
	processAllPending(e)

	if p.nextIndex < 1 {
		t.Fatalf("nextIndex = %d, must never go below 1", p.nextIndex)
	}
}

func TestAppendEntriesResponseStepsDownOnHigherTerm(t *testing.T) {
	e, _, transport := makeLeader(t, "a", []PeerId{"b"}, fastCfg())

	call, _ := transport.lastAppendTo("b")
	call.onResponse(AppendEntriesReply{Term: e.currentTerm + 5, Success: false}, nil)
	processAllPending(e)

	if e.role != RoleFollower {
		t.Fatalf("role = %v, want Follower after observing higher term", e.role)
	}
}

func TestAppendPendingGatesFurtherDispatch(t *testing.T) {
	e, log, transport := makeLeader(t, "a", []PeerId{"b"}, fastCfg())
	log.Append(e.currentTerm, testCommand{1})

	p := e.peers["b"]
	p.appendPending = false
	before := len(transport.appendCalls)
	e.maybeDispatchAppend(p, time.Now())
	e.maybeDispatchAppend(p, time.Now())

	if len(transport.appendCalls) != before+1 {
		t.Fatalf("expected exactly one dispatch while appendPending is set, got %d new calls",
			len(transport.appendCalls)-before)
	}
}

func TestStaleAppendPendingIsClearedAfterTimeout(t *testing.T) {
	cfg := fastCfg()
	cfg.AppendTimeout = 5 * time.Millisecond
	e, log, transport := makeLeader(t, "a", []PeerId{"b"}, cfg)
	log.Append(e.currentTerm, testCommand{1})

	p := e.peers["b"]
	p.appendPending = false
	before := len(transport.appendCalls)
	e.maybeDispatchAppend(p, time.Now())
	if len(transport.appendCalls) != before+1 {
		t.Fatalf("expected initial dispatch")
	}

	// Simulate the response never arriving; advance past AppendTimeout.
	e.maybeDispatchAppend(p, time.Now().Add(10*time.Millisecond))

	if len(transport.appendCalls) != before+2 {
		t.Fatalf("expected stale appendPending to be cleared and re-dispatched")
	}
}
