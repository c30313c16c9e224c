package raft

// RPCTransport is the outbound RPC surface the engine consumes. A send
// is fire-and-forget from the engine's point of view: the transport
// delivers a response by invoking onResponse asynchronously, at most
// once, on any goroutine (never synchronously on the calling goroutine,
// since the caller may be holding the engine's actor loop). A response
// that never arrives (dropped message, dead peer) simply never invokes
// the handler; see spec §5 on appendPending staleness.
type RPCTransport interface {
	SendRequestVote(peer PeerId, args RequestVoteArgs, onResponse func(RequestVoteReply, error))
	SendAppendEntries(peer PeerId, args AppendEntriesArgs, onResponse func(AppendEntriesReply, error))
}
