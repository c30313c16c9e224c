// Package store is the reference raft.Log for cmd/raftd: an in-memory
// slice of entries backed by a JSON file that is rewritten in full on
// every mutation, adapted from the
// teacher's LogStore (in-memory slice) and PersistentStore (durable
// JSON single-file state) merged into one collaborator.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/coreraft/raft/pkg/raft"
)

// CommandCodec lets FileLog persist and reload raft.Command values
// without depending on any concrete command type, the way the
// teacher's cmd/kvstore.DecodeOp is kept out of pkg/raft.
type CommandCodec interface {
	Encode(raft.Command) ([]byte, error)
	Decode([]byte) (raft.Command, error)
}

// nopLogger discards everything, used when no logger is supplied.
type nopLogger struct{}

func (nopLogger) Debug(int, string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Error(string, ...interface{})      {}

// record is the on-disk shape of one log entry.
type record struct {
	Index   raft.LogIndex `json:"index"`
	Term    raft.Term     `json:"term"`
	Command []byte        `json:"command"`
}

// persistedState is the entire file contents: every entry plus the
// commit index, written as one JSON document per PersistentStore's
// whole-file rewrite strategy.
type persistedState struct {
	Entries     []record      `json:"entries"`
	CommitIndex raft.LogIndex `json:"commitIndex"`
}

// FileLog implements raft.Log with a durable backing file. Every
// mutation rewrites the file in full and fsyncs, exactly as
// PersistentStore.Write does; this is adequate for the small logs this
// reference implementation is meant to demonstrate, not a production
// write-ahead log.
type FileLog struct {
	mu    sync.Mutex
	codec CommandCodec
	log   raft.Logger

	filePath string
	file     *os.File

	entries     []raft.LogEntry
	commitIndex raft.LogIndex
}

// NewFileLog opens (creating if necessary) the log file at filePath.
// logger may be nil, in which case FileLog discards its own log output;
// cmd/raftd passes its *log.Logger, which satisfies raft.Logger
// structurally without this package importing go-log itself.
func NewFileLog(filePath string, codec CommandCodec, logger raft.Logger) (*FileLog, error) {
	if logger == nil {
		logger = nopLogger{}
	}

	flags := os.O_RDWR | os.O_CREATE
	file, err := os.OpenFile(filePath, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filePath, err)
	}

	l := &FileLog{
		codec:    codec,
		log:      logger,
		filePath: filePath,
		file:     file,
	}

	if err := l.load(); err != nil {
		file.Close()
		return nil, fmt.Errorf("cannot load %q: %w", filePath, err)
	}

	return l, nil
}

func (l *FileLog) Close() error {
	return l.file.Close()
}

func (l *FileLog) load() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat %q: %w", l.filePath, err)
	}
	if info.Size() == 0 {
		return l.writeLocked()
	}

	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("cannot seek %q: %w", l.filePath, err)
	}

	var state persistedState
	if err := json.NewDecoder(l.file).Decode(&state); err != nil {
		return fmt.Errorf("cannot decode json data from %q: %w", l.filePath, err)
	}

	entries := make([]raft.LogEntry, len(state.Entries))
	for i, rec := range state.Entries {
		command, err := l.codec.Decode(rec.Command)
		if err != nil {
			return fmt.Errorf("cannot decode command at index %d: %w", rec.Index, err)
		}
		entries[i] = raft.LogEntry{Index: rec.Index, Term: rec.Term, Command: command}
	}

	l.entries = entries
	l.commitIndex = state.CommitIndex

	return nil
}

// writeLocked rewrites the whole file. Caller must hold l.mu.
func (l *FileLog) writeLocked() error {
	state := persistedState{
		Entries:     make([]record, len(l.entries)),
		CommitIndex: l.commitIndex,
	}

	for i, entry := range l.entries {
		data, err := l.codec.Encode(entry.Command)
		if err != nil {
			return fmt.Errorf("cannot encode command at index %d: %w", entry.Index, err)
		}
		state.Entries[i] = record{Index: entry.Index, Term: entry.Term, Command: data}
	}

	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("cannot seek %q: %w", l.filePath, err)
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("cannot truncate %q: %w", l.filePath, err)
	}

	if err := json.NewEncoder(l.file).Encode(&state); err != nil {
		return fmt.Errorf("cannot write json data to %q: %w", l.filePath, err)
	}

	return l.file.Sync()
}

func (l *FileLog) LastIndex() raft.LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	return raft.LogIndex(len(l.entries))
}

func (l *FileLog) LastTerm() raft.Term {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

func (l *FileLog) TermAt(index raft.LogIndex) raft.Term {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index == 0 || int(index) > len(l.entries) {
		return 0
	}
	return l.entries[index-1].Term
}

func (l *FileLog) CommitIndex() raft.LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitIndex
}

func (l *FileLog) SetCommitIndex(index raft.LogIndex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index <= l.commitIndex {
		return
	}
	l.commitIndex = index
	if err := l.writeLocked(); err != nil {
		l.log.Error("cannot persist commit index: %v", err)
	}
}

func (l *FileLog) Append(term raft.Term, command raft.Command) (raft.LogIndex, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	index := raft.LogIndex(len(l.entries) + 1)
	l.entries = append(l.entries, raft.LogEntry{Index: index, Term: term, Command: command})

	if err := l.writeLocked(); err != nil {
		l.log.Error("cannot persist appended entry: %v", err)
		l.entries = l.entries[:len(l.entries)-1]
		return 0, false
	}

	return index, true
}

func (l *FileLog) AppendEntry(entry raft.LogEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Index == 0 {
		return false
	}

	if int(entry.Index) <= len(l.entries) {
		if l.entries[entry.Index-1].Term == entry.Term {
			return true
		}
		l.entries = l.entries[:entry.Index-1]
	}

	if int(entry.Index) != len(l.entries)+1 {
		return false
	}

	l.entries = append(l.entries, entry)

	if err := l.writeLocked(); err != nil {
		l.log.Error("cannot persist replicated entry: %v", err)
		l.entries = l.entries[:len(l.entries)-1]
		return false
	}

	return true
}

func (l *FileLog) IsConsistentWith(index raft.LogIndex, term raft.Term) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index == 0 {
		return true
	}
	if int(index) > len(l.entries) {
		return false
	}
	return l.entries[index-1].Term == term
}

func (l *FileLog) EntriesFrom(start raft.LogIndex, maxCount int) []raft.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start == 0 {
		start = 1
	}
	if int(start) > len(l.entries) {
		return nil
	}

	end := int(start) - 1 + maxCount
	if end > len(l.entries) {
		end = len(l.entries)
	}

	out := make([]raft.LogEntry, end-int(start)+1)
	copy(out, l.entries[start-1:end])
	return out
}

func (l *FileLog) Entry(index raft.LogIndex) raft.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[index-1]
}
