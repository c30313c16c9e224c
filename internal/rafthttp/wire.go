package rafthttp

import (
	"encoding/json"
	"fmt"

	"github.com/coreraft/raft/pkg/raft"
)

// CommandCodec lets this package serialize the raft.Command values
// carried by AppendEntries payloads without depending on any concrete
// command type. internal/kv.Codec satisfies this structurally.
type CommandCodec interface {
	Encode(raft.Command) ([]byte, error)
	Decode([]byte) (raft.Command, error)
}

// wireEntry is the on-the-wire shape of a raft.LogEntry.
type wireEntry struct {
	Index   raft.LogIndex `json:"index"`
	Term    raft.Term     `json:"term"`
	Command []byte        `json:"command"`
}

func encodeEntries(codec CommandCodec, entries []raft.LogEntry) ([]wireEntry, error) {
	out := make([]wireEntry, len(entries))
	for i, entry := range entries {
		data, err := codec.Encode(entry.Command)
		if err != nil {
			return nil, fmt.Errorf("cannot encode entry %d: %w", entry.Index, err)
		}
		out[i] = wireEntry{Index: entry.Index, Term: entry.Term, Command: data}
	}
	return out, nil
}

func decodeEntries(codec CommandCodec, entries []wireEntry) ([]raft.LogEntry, error) {
	out := make([]raft.LogEntry, len(entries))
	for i, entry := range entries {
		command, err := codec.Decode(entry.Command)
		if err != nil {
			return nil, fmt.Errorf("cannot decode entry %d: %w", entry.Index, err)
		}
		out[i] = raft.LogEntry{Index: entry.Index, Term: entry.Term, Command: command}
	}
	return out, nil
}

// wireRequestVoteArgs/wireAppendEntriesArgs mirror raft.RequestVoteArgs/
// raft.AppendEntriesArgs with a JSON-friendly Entries field, following
// the teacher's RPCRequestVoteRequest/RPCAppendEntriesRequest shapes.
type wireRequestVoteArgs struct {
	Term         raft.Term    `json:"term"`
	CandidateId  raft.PeerId  `json:"candidateId"`
	LastLogIndex raft.LogIndex `json:"lastLogIndex"`
	LastLogTerm  raft.Term    `json:"lastLogTerm"`
}

type wireAppendEntriesArgs struct {
	Term         raft.Term     `json:"term"`
	LeaderId     raft.PeerId   `json:"leaderId"`
	PrevLogIndex raft.LogIndex `json:"prevLogIndex"`
	PrevLogTerm  raft.Term     `json:"prevLogTerm"`
	Entries      []wireEntry   `json:"entries"`
	LeaderCommit raft.LogIndex `json:"leaderCommit"`
}

func toWireRequestVoteArgs(args raft.RequestVoteArgs) wireRequestVoteArgs {
	return wireRequestVoteArgs{
		Term:         args.Term,
		CandidateId:  args.CandidateId,
		LastLogIndex: args.LastLogIndex,
		LastLogTerm:  args.LastLogTerm,
	}
}

func (w wireRequestVoteArgs) toArgs() raft.RequestVoteArgs {
	return raft.RequestVoteArgs{
		Term:         w.Term,
		CandidateId:  w.CandidateId,
		LastLogIndex: w.LastLogIndex,
		LastLogTerm:  w.LastLogTerm,
	}
}

func toWireAppendEntriesArgs(codec CommandCodec, args raft.AppendEntriesArgs) (wireAppendEntriesArgs, error) {
	entries, err := encodeEntries(codec, args.Entries)
	if err != nil {
		return wireAppendEntriesArgs{}, err
	}
	return wireAppendEntriesArgs{
		Term:         args.Term,
		LeaderId:     args.LeaderId,
		PrevLogIndex: args.PrevLogIndex,
		PrevLogTerm:  args.PrevLogTerm,
		Entries:      entries,
		LeaderCommit: args.LeaderCommit,
	}, nil
}

func (w wireAppendEntriesArgs) toArgs(codec CommandCodec) (raft.AppendEntriesArgs, error) {
	entries, err := decodeEntries(codec, w.Entries)
	if err != nil {
		return raft.AppendEntriesArgs{}, err
	}
	return raft.AppendEntriesArgs{
		Term:         w.Term,
		LeaderId:     w.LeaderId,
		PrevLogIndex: w.PrevLogIndex,
		PrevLogTerm:  w.PrevLogTerm,
		Entries:      entries,
		LeaderCommit: w.LeaderCommit,
	}, nil
}

func encodeJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
