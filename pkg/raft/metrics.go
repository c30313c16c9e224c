package raft

// Metrics is a point-in-time snapshot of engine counters. It is
// observability only: nothing in this package branches on it. Grounded
// on rongromi106-raft-kv/raft/metric.go's counter set, adapted to this
// engine's vocabulary (see SPEC_FULL.md's supplemented-features
// section).
type Metrics struct {
	ElectionsStarted uint64
	VotesGranted     uint64
	VotesReceived    uint64
	AppendsSent      uint64
	AppendsAccepted  uint64
	AppendsRejected  uint64
	StepDowns        uint64
	CommitIndex      LogIndex
	AppliedIndex     LogIndex
}
