package raft

import "time"

// callElection implements spec §4.5.
func (e *Engine) callElection() {
	e.currentTerm++
	e.role = RoleCandidate
	e.votedFor = e.myPeerId
	e.votesGranted = 1 // self
	e.metrics.ElectionsStarted++

	term := e.currentTerm
	lastLogIndex := e.log.LastIndex()
	lastLogTerm := e.log.LastTerm()

	e.logger.Debug(1, "starting election for term %d", term)

	for _, p := range e.peers {
		p.resetForNewElection()

		args := RequestVoteArgs{
			Term:         term,
			CandidateId:  e.myPeerId,
			LastLogIndex: lastLogIndex,
			LastLogTerm:  lastLogTerm,
		}

		e.sendRequestVote(p.id, args)
	}

	e.rescheduleElection()
}

func (e *Engine) sendRequestVote(peer PeerId, args RequestVoteArgs) {
	e.transport.SendRequestVote(peer, args, func(reply RequestVoteReply, err error) {
		select {
		case e.voteResponseCh <- voteResponseEvent{peer: peer, sentTerm: args.Term, reply: reply, err: err}:
		case <-e.stopped:
		}
	})
}

// onRequestVoteResponse implements the response half of spec §4.5.
func (e *Engine) onRequestVoteResponse(ev voteResponseEvent) {
	if ev.err != nil {
		e.logger.Debug(2, "request vote to %s failed: %v", ev.peer, ev.err)
		return
	}

	if e.stepDown(ev.reply.Term) {
		return
	}

	if ev.reply.Term != e.currentTerm || e.role != RoleCandidate {
		return
	}

	if !ev.reply.VoteGranted {
		return
	}

	if p, ok := e.peers[ev.peer]; ok {
		if p.voteGranted {
			return
		}
		p.voteGranted = true
	}

	e.votesGranted++
	e.metrics.VotesReceived++

	if e.votesGranted >= e.quorumSize() {
		e.becomeLeader()
	}
}

// quorumSize returns 1 + floor(peerCount/2), counting self.
func (e *Engine) quorumSize() int {
	return 1 + len(e.peers)/2
}

// becomeLeader implements spec §4.5.
func (e *Engine) becomeLeader() {
	e.role = RoleLeader
	e.leaderId = e.myPeerId

	lastLogIndex := e.log.LastIndex()

	for _, p := range e.peers {
		p.resetForLeadership(lastLogIndex)
	}

	e.logger.Info("elected leader for term %d", e.currentTerm)

	now := time.Now()
	for _, p := range e.peers {
		e.maybeDispatchAppend(p, now)
	}
}
