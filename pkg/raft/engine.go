package raft

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// Engine is the Raft consensus core described in this package's parent
// specification: role state machine, election, replication, commit
// advancement and apply loop. It owns no transport and no persistence;
// both are supplied as collaborators (Log, StateMachine, RPCTransport).
//
// Once Start has launched it, all mutable engine state is only ever
// touched by the single actor goroutine (see run); SetPeerId, AddPeer
// and Start itself set state up before that. After Start, exported
// methods either communicate with that goroutine over a channel or read
// an atomically published snapshot (Role, CurrentTerm, LeaderId),
// mirroring the
// teacher's Server.main select loop but generalized so inbound RPCs,
// outbound RPC responses and client commands all funnel through the
// same mailbox instead of only inbound RPCs.
type Engine struct {
	cfg       EngineCfg
	log       Log
	sm        StateMachine
	transport RPCTransport
	logger    Logger

	myPeerId PeerId
	peers    map[PeerId]*peerState

	role             Role
	currentTerm      Term
	votedFor         PeerId
	leaderId         PeerId
	electionDeadline time.Time
	votesGranted     int

	metrics Metrics

	rand *rand.Rand

	requestVoteCh    chan requestVoteCall
	appendEntriesCh  chan appendEntriesCall
	voteResponseCh   chan voteResponseEvent
	appendResponseCh chan appendResponseEvent
	commandCh        chan commandCall
	metricsCh        chan chan Metrics

	stopCh  chan struct{}
	stopped chan struct{}

	errorChan chan<- error

	started  bool
	snapshot atomic.Value // engineSnapshot
}

type engineSnapshot struct {
	role        Role
	currentTerm Term
	leaderId    PeerId
}

type requestVoteCall struct {
	args  RequestVoteArgs
	reply chan RequestVoteReply
}

type appendEntriesCall struct {
	args  AppendEntriesArgs
	reply chan AppendEntriesReply
}

type voteResponseEvent struct {
	peer       PeerId
	sentTerm   Term
	reply      RequestVoteReply
	err        error
}

type appendResponseEvent struct {
	peer             PeerId
	sentTerm         Term
	sentPrevLogIndex LogIndex
	sentLastIndex    LogIndex // 0 if the request carried no entries
	reply            AppendEntriesReply
	err              error
}

type commandCall struct {
	command Command
	reply   chan commandResult
}

type commandResult struct {
	index    LogIndex
	term     Term
	isLeader bool
}

// NewEngine builds an Engine around the given collaborators. Peers are
// added with AddPeer and the local identity with SetPeerId before
// Start is called; both panic if called afterwards.
func NewEngine(log Log, sm StateMachine, transport RPCTransport, cfg EngineCfg) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:       cfg,
		log:       log,
		sm:        sm,
		transport: transport,
		logger:    cfg.Logger,

		peers: make(map[PeerId]*peerState),
		role:  RoleJoining,

		rand: rand.New(rand.NewSource(time.Now().UnixNano())),

		requestVoteCh:    make(chan requestVoteCall),
		appendEntriesCh:  make(chan appendEntriesCall),
		voteResponseCh:   make(chan voteResponseEvent, 16),
		appendResponseCh: make(chan appendResponseEvent, 16),
		commandCh:        make(chan commandCall),
		metricsCh:        make(chan chan Metrics),

		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}

	e.publishSnapshot()

	return e
}

// SetPeerId sets this replica's own identity. Must be called before Start.
func (e *Engine) SetPeerId(id PeerId) {
	if e.started {
		Panicf("cannot set peer id after start")
	}
	e.myPeerId = id
}

// AddPeer registers a remote cluster member. Must be called before Start.
func (e *Engine) AddPeer(id PeerId) {
	if e.started {
		Panicf("cannot add peer after start")
	}
	if id == e.myPeerId {
		Panicf("cannot add self as peer")
	}
	e.peers[id] = newPeerState(id)
}

// Start transitions the engine Joining -> Follower and launches its
// actor goroutine. errorChan receives fatal errors (a panic recovered
// from the actor loop); it may be nil.
func (e *Engine) Start(errorChan chan<- error) error {
	if e.started {
		return fmt.Errorf("engine already started")
	}
	if e.myPeerId == "" {
		return fmt.Errorf("missing peer id")
	}

	e.started = true
	e.errorChan = errorChan

	e.role = RoleFollower
	e.rescheduleElection()
	e.publishSnapshot()

	e.logger.Info("engine %s starting as follower, term %d", e.myPeerId, e.currentTerm)

	go e.run()

	return nil
}

// Stop terminates the actor goroutine and waits for it to exit.
func (e *Engine) Stop() {
	select {
	case <-e.stopped:
		return
	default:
	}

	close(e.stopCh)
	<-e.stopped
}

// Role returns the engine's current role. Safe to call from any goroutine.
func (e *Engine) Role() Role {
	return e.loadSnapshot().role
}

// CurrentTerm returns the engine's current term. Safe to call from any goroutine.
func (e *Engine) CurrentTerm() Term {
	return e.loadSnapshot().currentTerm
}

// LeaderId returns the last observed leader for the current term, or ""
// if unknown. Advisory only, per spec §3.
func (e *Engine) LeaderId() PeerId {
	return e.loadSnapshot().leaderId
}

// Log returns the collaborator log, for callers that need read access
// outside the engine (e.g. to serve stale reads).
func (e *Engine) Log() Log {
	return e.log
}

// StateMachine returns the collaborator state machine.
func (e *Engine) StateMachine() StateMachine {
	return e.sm
}

// Metrics returns a point-in-time snapshot of the engine's counters.
// See SPEC_FULL.md's supplemented-features section.
func (e *Engine) Metrics() Metrics {
	reply := make(chan Metrics, 1)
	select {
	case e.metricsCh <- reply:
		return <-reply
	case <-e.stopped:
		return Metrics{}
	}
}

func (e *Engine) loadSnapshot() engineSnapshot {
	v, _ := e.snapshot.Load().(engineSnapshot)
	return v
}

func (e *Engine) publishSnapshot() {
	e.snapshot.Store(engineSnapshot{
		role:        e.role,
		currentTerm: e.currentTerm,
		leaderId:    e.leaderId,
	})
}

// run is the engine's single exclusion domain: every mutation of engine
// state happens on this goroutine. It mirrors the teacher's
// Server.main select loop, extended with outbound RPC responses and
// client commands sharing the same mailbox as inbound RPCs and the
// ticker.
func (e *Engine) run() {
	defer close(e.stopped)

	defer func() {
		if value := recover(); value != nil {
			msg := RecoverValueString(value)
			trace := StackTrace(10)
			e.logger.Error("panic: %s\n%s", msg, trace)

			if e.errorChan != nil {
				e.errorChan <- fmt.Errorf("panic: %s", msg)
			}
		}
	}()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			e.role = RoleLeaving
			e.publishSnapshot()
			return

		case <-ticker.C:
			e.onTick()

		case call := <-e.requestVoteCh:
			call.reply <- e.handleRequestVoteLocked(call.args)

		case call := <-e.appendEntriesCh:
			call.reply <- e.handleAppendEntriesLocked(call.args)

		case ev := <-e.voteResponseCh:
			e.onRequestVoteResponse(ev)

		case ev := <-e.appendResponseCh:
			e.onAppendEntriesResponse(ev)

		case call := <-e.commandCh:
			e.onCommand(call)

		case reply := <-e.metricsCh:
			reply <- e.metrics
		}

		e.publishSnapshot()
	}
}

// onTick implements spec §4.2.
func (e *Engine) onTick() {
	now := time.Now()

	e.updateStateMachine(e.log.CommitIndex())

	switch e.role {
	case RoleFollower, RoleCandidate:
		if now.After(e.electionDeadline) {
			e.callElection()
		}

	case RoleLeader:
		e.advanceCommitIndex()
		for _, p := range e.peers {
			e.maybeDispatchAppend(p, now)
		}

	case RoleJoining, RoleObserver, RoleLeaving:
		// no action
	}
}

func (e *Engine) rescheduleElection() {
	randomMs := e.cfg.ElectionTimeoutRandom.Milliseconds()

	jitter := time.Duration(0)
	if randomMs > 0 {
		jitter = time.Duration(e.rand.Int63n(randomMs)) * time.Millisecond
	}

	e.electionDeadline = time.Now().Add(e.cfg.ElectionTimeoutFixed).Add(jitter)
}

// stepDown implements spec §4.7.
func (e *Engine) stepDown(term Term) bool {
	if term <= e.currentTerm {
		return false
	}

	e.currentTerm = term
	e.votedFor = ""

	if e.role == RoleCandidate || e.role == RoleLeader {
		e.role = RoleFollower
		e.metrics.StepDowns++

		if e.sm.Index() > e.log.CommitIndex() {
			e.rewindStateMachine()
		}
	}

	e.rescheduleElection()

	return true
}

// rewindStateMachine discards optimistically-applied state and replays
// up to the true commit index, per spec §4.7/§4.8.
func (e *Engine) rewindStateMachine() {
	e.sm.Reset()
	e.updateStateMachine(e.log.CommitIndex())
}
