// Package rafthttp is the reference raft.RPCTransport for cmd/raftd: an
// HTTP client/server pair adapted from the teacher's transport.go and
// protocol.go, generalized from the teacher's fixed message set to the
// engine's RequestVote/AppendEntries contract and from ServerId/ServerSet
// to raft.PeerId plus a small ClusterConfig kept out of pkg/raft.
package rafthttp

import "github.com/coreraft/raft/pkg/raft"

// ClusterConfig maps every cluster member to the address its RPC server
// listens on. It is intentionally decoupled from pkg/raft, which only
// ever deals in raft.PeerId, per this system's transport-agnostic core
// (grounded on rongromi106-raft-kv's cluster.go and
// Konstantsiy-casual-raft's config.go, both of which keep addressing
// out of the consensus core). cmd/raftd populates it from cluster.yaml.
type ClusterConfig map[raft.PeerId]string
