package raft

// HandleRequestVote is the transport-facing entry point for an inbound
// RequestVote RPC (spec §6, "RPC interface exposed"). It may be called
// from any goroutine; the work happens on the engine's actor goroutine.
func (e *Engine) HandleRequestVote(args RequestVoteArgs) RequestVoteReply {
	reply := make(chan RequestVoteReply, 1)

	select {
	case e.requestVoteCh <- requestVoteCall{args: args, reply: reply}:
	case <-e.stopped:
		return RequestVoteReply{Term: e.CurrentTerm()}
	}

	return <-reply
}

// HandleAppendEntries is the transport-facing entry point for an
// inbound AppendEntries RPC.
func (e *Engine) HandleAppendEntries(args AppendEntriesArgs) AppendEntriesReply {
	reply := make(chan AppendEntriesReply, 1)

	select {
	case e.appendEntriesCh <- appendEntriesCall{args: args, reply: reply}:
	case <-e.stopped:
		return AppendEntriesReply{Term: e.CurrentTerm()}
	}

	return <-reply
}

// handleRequestVoteLocked implements spec §4.6. Called only from run.
func (e *Engine) handleRequestVoteLocked(args RequestVoteArgs) RequestVoteReply {
	if args.Term > e.currentTerm {
		e.stepDown(args.Term)
	}

	granted := args.Term >= e.currentTerm &&
		(e.votedFor == "" || e.votedFor == args.CandidateId) &&
		args.LastLogIndex >= e.log.LastIndex() &&
		args.LastLogTerm >= e.log.LastTerm()

	if granted {
		e.votedFor = args.CandidateId
		e.rescheduleElection()
		e.metrics.VotesGranted++
	}

	return RequestVoteReply{Term: e.currentTerm, VoteGranted: granted}
}

// handleAppendEntriesLocked implements spec §4.6. Called only from run.
func (e *Engine) handleAppendEntriesLocked(args AppendEntriesArgs) AppendEntriesReply {
	if args.Term < e.currentTerm {
		return AppendEntriesReply{Term: e.currentTerm, Success: false, LastLogIndex: e.log.LastIndex()}
	}

	if args.Term > e.currentTerm {
		e.stepDown(args.Term)
	}

	e.rescheduleElection()

	if args.LeaderId != e.leaderId {
		e.logger.Info("leader is %s", args.LeaderId)
		e.leaderId = args.LeaderId
	}

	if !e.log.IsConsistentWith(args.PrevLogIndex, args.PrevLogTerm) {
		return AppendEntriesReply{Term: e.currentTerm, Success: false, LastLogIndex: e.log.LastIndex()}
	}

	for _, entry := range args.Entries {
		if !e.log.AppendEntry(entry) {
			return AppendEntriesReply{Term: e.currentTerm, Success: false, LastLogIndex: e.log.LastIndex()}
		}
	}

	if args.LeaderCommit > e.log.CommitIndex() {
		newCommit := args.LeaderCommit
		if lastIndex := e.log.LastIndex(); newCommit > lastIndex {
			newCommit = lastIndex
		}
		e.log.SetCommitIndex(newCommit)
	}

	return AppendEntriesReply{Term: e.currentTerm, Success: true, LastLogIndex: e.log.LastIndex()}
}
