package raft

import "time"

// peerState is the leader's view of one remote peer. It is reset on
// every leader transition (spec invariant 6).
type peerState struct {
	id PeerId

	nextIndex  LogIndex
	matchIndex LogIndex

	appendPending     bool
	lastAppendInstant time.Time
	pendingSince      time.Time

	// voteGranted is only meaningful while role == RoleCandidate and
	// term == currentTerm; it is cleared on every new election.
	voteGranted bool
}

func newPeerState(id PeerId) *peerState {
	return &peerState{
		id:         id,
		nextIndex:  1,
		matchIndex: 0,
	}
}

func (p *peerState) resetForNewElection() {
	p.nextIndex = 1
	p.matchIndex = 0
	p.voteGranted = false
}

func (p *peerState) resetForLeadership(lastLogIndex LogIndex) {
	p.matchIndex = 0
	p.nextIndex = lastLogIndex + 1
	p.appendPending = false
}
