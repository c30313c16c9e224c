package rafthttp

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/galdor/go-uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/coreraft/raft/pkg/raft"
)

// Engine is the narrow surface Server needs from *raft.Engine, so this
// package can be unit tested against a stub.
type Engine interface {
	HandleRequestVote(raft.RequestVoteArgs) raft.RequestVoteReply
	HandleAppendEntries(raft.AppendEntriesArgs) raft.AppendEntriesReply
}

// Server is the inbound half of the reference transport: it decodes
// RequestVote/AppendEntries HTTP calls and hands them to the engine,
// mirroring the teacher's Server.ServeHTTP but routed with httprouter
// instead of a single catch-all handler, since this transport exposes
// two distinct RPC endpoints rather than the teacher's one.
type Server struct {
	engine   Engine
	codec    CommandCodec
	logger   raft.Logger
	router   *httprouter.Router
	address  string
	listener net.Listener
	httpSrv  *http.Server
}

func NewServer(address string, engine Engine, codec CommandCodec, logger raft.Logger) *Server {
	if logger == nil {
		logger = nopLogger{}
	}

	s := &Server{
		engine:  engine,
		codec:   codec,
		logger:  logger,
		router:  httprouter.New(),
		address: address,
	}

	s.router.POST("/raft/request-vote", s.hRequestVote)
	s.router.POST("/raft/append-entries", s.hAppendEntries)
	s.router.GET("/raft/health", s.hHealth)

	return s
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", s.address, err)
	}
	s.listener = listener

	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("listening on %s", s.address)

	go func() {
		defer func() {
			if value := recover(); value != nil {
				s.logger.Error("panic: %s\n%s", raft.RecoverValueString(value), raft.StackTrace(10))
			}
		}()

		if err := s.httpSrv.Serve(listener); err != http.ErrServerClosed {
			s.logger.Error("server error: %v", err)
		}
	}()

	return nil
}

func (s *Server) Stop() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
}

func (s *Server) requestId(req *http.Request) string {
	if id := req.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.MustGenerate(uuid.V4).String()
}

func (s *Server) hRequestVote(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	requestId := s.requestId(req)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		s.replyError(w, requestId, http.StatusBadRequest, "cannot read request body: %v", err)
		return
	}

	var wireArgs wireRequestVoteArgs
	if err := decodeJSON(body, &wireArgs); err != nil {
		s.replyError(w, requestId, http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	s.logger.Debug(2, "[%s] request-vote from %s for term %d", requestId, wireArgs.CandidateId, wireArgs.Term)

	reply := s.engine.HandleRequestVote(wireArgs.toArgs())

	s.replyJSON(w, reply)
}

func (s *Server) hAppendEntries(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	requestId := s.requestId(req)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		s.replyError(w, requestId, http.StatusBadRequest, "cannot read request body: %v", err)
		return
	}

	var wireArgs wireAppendEntriesArgs
	if err := decodeJSON(body, &wireArgs); err != nil {
		s.replyError(w, requestId, http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	args, err := wireArgs.toArgs(s.codec)
	if err != nil {
		s.replyError(w, requestId, http.StatusBadRequest, "cannot decode entries: %v", err)
		return
	}

	s.logger.Debug(2, "[%s] append-entries from %s, %d entries", requestId, wireArgs.LeaderId, len(wireArgs.Entries))

	reply := s.engine.HandleAppendEntries(args)

	s.replyJSON(w, reply)
}

func (s *Server) hHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) replyJSON(w http.ResponseWriter, v interface{}) {
	data, err := encodeJSON(v)
	if err != nil {
		s.logger.Error("cannot encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) replyError(w http.ResponseWriter, requestId string, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Error("[%s] %s", requestId, msg)
	w.WriteHeader(status)
	fmt.Fprint(w, msg)
}
