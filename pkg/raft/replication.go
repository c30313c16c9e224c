package raft

import "time"

// maybeDispatchAppend implements the per-peer dispatch gate of spec §4.3.
func (e *Engine) maybeDispatchAppend(p *peerState, now time.Time) {
	if p.appendPending && now.Sub(p.pendingSince) > e.cfg.AppendTimeout {
		e.logger.Debug(1, "clearing stale appendPending for %s after %v", p.id, e.cfg.AppendTimeout)
		p.appendPending = false
	}

	if p.appendPending {
		return
	}

	hasNewEntries := p.nextIndex <= e.log.LastIndex()
	heartbeatDue := now.After(p.lastAppendInstant.Add(e.cfg.HeartbeatInterval)) ||
		now.Equal(p.lastAppendInstant.Add(e.cfg.HeartbeatInterval))

	if !hasNewEntries && !heartbeatDue {
		return
	}

	e.dispatchAppend(p, now)
}

func (e *Engine) dispatchAppend(p *peerState, now time.Time) {
	prevLogIndex := p.nextIndex - 1
	prevLogTerm := e.log.TermAt(prevLogIndex)
	entries := e.log.EntriesFrom(p.nextIndex, e.cfg.MaxEntriesPerRequest)

	args := AppendEntriesArgs{
		Term:         e.currentTerm,
		LeaderId:     e.myPeerId,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		LeaderCommit: e.log.CommitIndex(),
	}

	p.appendPending = true
	p.lastAppendInstant = now
	p.pendingSince = now

	var sentLastIndex LogIndex
	if len(entries) > 0 {
		sentLastIndex = entries[len(entries)-1].Index
	}

	e.metrics.AppendsSent++

	e.sendAppendEntries(p.id, args, sentLastIndex)
}

func (e *Engine) sendAppendEntries(peer PeerId, args AppendEntriesArgs, sentLastIndex LogIndex) {
	e.transport.SendAppendEntries(peer, args, func(reply AppendEntriesReply, err error) {
		ev := appendResponseEvent{
			peer:             peer,
			sentTerm:         args.Term,
			sentPrevLogIndex: args.PrevLogIndex,
			sentLastIndex:    sentLastIndex,
			reply:            reply,
			err:              err,
		}

		select {
		case e.appendResponseCh <- ev:
		case <-e.stopped:
		}
	})
}

// onAppendEntriesResponse implements the response half of spec §4.3.
func (e *Engine) onAppendEntriesResponse(ev appendResponseEvent) {
	p, ok := e.peers[ev.peer]
	if !ok {
		return
	}

	p.appendPending = false

	if ev.err != nil {
		e.logger.Debug(2, "append entries to %s failed: %v", ev.peer, ev.err)
		return
	}

	if e.stepDown(ev.reply.Term) {
		return
	}

	if e.role != RoleLeader {
		return
	}

	if ev.sentTerm != e.currentTerm {
		// Stale response from a term we have since left, even though it
		// did not itself carry a higher term (e.g. we lost and regained
		// leadership). Ignore rather than corrupt peer bookkeeping.
		return
	}

	if ev.reply.Success {
		e.metrics.AppendsAccepted++

		if ev.sentLastIndex > 0 {
			p.matchIndex = ev.sentLastIndex
			p.nextIndex = p.matchIndex + 1
		}

		// Pipeline: keep sending to this peer without waiting for the
		// next tick, per spec §4.3.
		e.maybeDispatchAppend(p, time.Now())
		return
	}

	e.metrics.AppendsRejected++

	if p.nextIndex > ev.reply.LastLogIndex {
		p.nextIndex = ev.reply.LastLogIndex
	} else if p.nextIndex > 1 {
		p.nextIndex--
	}

	if p.nextIndex < 1 {
		p.nextIndex = 1
	}
}
