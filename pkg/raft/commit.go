package raft

// advanceCommitIndex implements the leader-only commit advancer of
// spec §4.4, plus the term-safety check the spec flags as an open
// question (see SPEC_FULL.md and DESIGN.md): the commit index only ever
// moves to an index whose entry was appended in the leader's own
// current term; earlier-term entries below it commit along with it.
//
// matchIndex is monotone non-increasing in N across peers, so the
// count returned by isCommittable is monotone non-increasing in N;
// the moment it drops below quorum, no higher N can qualify either.
func (e *Engine) advanceCommitIndex() {
	lastIndex := e.log.LastIndex()
	commitIndex := e.log.CommitIndex()

	candidate := commitIndex

	for n := commitIndex + 1; n <= lastIndex; n++ {
		if !e.isCommittable(n) {
			break
		}

		if e.log.TermAt(n) == e.currentTerm {
			candidate = n
		}
	}

	if candidate > commitIndex {
		e.log.SetCommitIndex(candidate)
	}

	e.metrics.CommitIndex = e.log.CommitIndex()
}

// isCommittable implements spec §4.4's quorum rule: the leader counts
// as implicitly up to date at lastIndex, so only peer matchIndex is
// checked here.
func (e *Engine) isCommittable(n LogIndex) bool {
	count := 1 // self

	for _, p := range e.peers {
		if p.matchIndex >= n {
			count++
		}
	}

	return count >= e.quorumSize()
}
