package raft

// updateStateMachine implements spec §4.8's apply loop, driving the
// state machine forward to targetIndex.
func (e *Engine) updateStateMachine(targetIndex LogIndex) {
	for e.sm.Index() < targetIndex {
		entry := e.log.Entry(e.sm.Index() + 1)
		entry.Command.ApplyTo(e.sm)
		e.sm.Apply(entry.Index, entry.Term)
	}

	e.metrics.AppliedIndex = e.sm.Index()
}

// ExecuteCommand implements spec §4.8's leader-side optimistic apply.
// It blocks until the actor goroutine has processed the submission. The
// returned index/term identify the log position the command was
// appended at. isLeader is false, and index/term are zero, if the
// command was ignored because this replica is not the leader (spec §7:
// "command submitted to non-leader") or because the log refused the
// append.
func (e *Engine) ExecuteCommand(command Command) (index LogIndex, term Term, isLeader bool) {
	reply := make(chan commandResult, 1)

	select {
	case e.commandCh <- commandCall{command: command, reply: reply}:
	case <-e.stopped:
		return 0, 0, false
	}

	select {
	case res := <-reply:
		return res.index, res.term, res.isLeader
	case <-e.stopped:
		return 0, 0, false
	}
}

func (e *Engine) onCommand(call commandCall) {
	if e.role != RoleLeader {
		call.reply <- commandResult{isLeader: false}
		return
	}

	index, ok := e.log.Append(e.currentTerm, call.command)
	if !ok {
		call.reply <- commandResult{isLeader: false}
		return
	}

	// Optimistic apply: make the effect visible to local reads before
	// replication completes. Discarded by rewindStateMachine if this
	// replica steps down before the entry commits.
	e.updateStateMachine(e.log.LastIndex())

	call.reply <- commandResult{index: index, term: e.currentTerm, isLeader: true}
}
