package raft

// Log is the durable replicated log the engine drives. Implementations
// are responsible for persistence, consistency checks and truncation;
// the engine only ever calls the methods below, always from its own
// single actor goroutine.
type Log interface {
	// LastIndex returns the index of the last entry, or 0 for an empty log.
	LastIndex() LogIndex

	// LastTerm returns the term of the last entry, or 0 for an empty log.
	LastTerm() Term

	// TermAt returns the term of the entry at index, or 0 if index is 0
	// (the sentinel "before the log" position).
	TermAt(index LogIndex) Term

	// CommitIndex returns the highest index known to be safely
	// replicated on a majority.
	CommitIndex() LogIndex

	// SetCommitIndex advances the commit index. Implementations must
	// reject (or ignore) a value lower than the current commit index.
	SetCommitIndex(index LogIndex)

	// Append appends a fresh command at the given term, returning the
	// new entry's index. Used by the leader for locally originated
	// commands.
	Append(term Term, command Command) (LogIndex, bool)

	// AppendEntry appends or overwrites at entry.Index, truncating any
	// conflicting suffix first. Used by followers applying a leader's
	// AppendEntries payload.
	AppendEntry(entry LogEntry) bool

	// IsConsistentWith reports whether the log has an entry at index
	// with the given term (or, for index == 0, whether the log is
	// consistent with "no history").
	IsConsistentWith(index LogIndex, term Term) bool

	// EntriesFrom returns up to maxCount entries starting at start, in
	// order. It returns an empty (possibly nil) slice if start is
	// beyond the last index.
	EntriesFrom(start LogIndex, maxCount int) []LogEntry

	// Entry returns the entry at index. Index must be between 1 and
	// LastIndex(); implementations may panic otherwise.
	Entry(index LogIndex) LogEntry
}
