package raft

// Logger is the narrow logging surface the engine depends on. It is
// satisfied directly by *log.Logger from github.com/galdor/go-log;
// pkg/raft never imports go-log itself so the core stays
// collaborator-agnostic.
type Logger interface {
	Debug(level int, format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// nopLogger discards everything. Used when no logger is supplied so the
// engine never has to nil-check s.Log.
type nopLogger struct{}

func (nopLogger) Debug(int, string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Error(string, ...interface{})      {}
