package main

import (
	"fmt"
	"net"
	"path"

	"github.com/galdor/go-log"
	"github.com/galdor/go-program"
	"github.com/galdor/go-service/pkg/service"
	"github.com/galdor/go-service/pkg/shttp"

	"github.com/coreraft/raft/internal/kv"
	"github.com/coreraft/raft/internal/rafthttp"
	"github.com/coreraft/raft/internal/store"
	"github.com/coreraft/raft/pkg/raft"
)

// Service wires the consensus engine to its collaborators and hosts it
// inside a go-service process, following the shape of the teacher's
// cmd/kvstore/service.go: the raft engine gets its own listener
// (internal/rafthttp), and go-service's shttp only fronts the KV API.
type Service struct {
	Cfg     ServiceCfg
	Program *program.Program
	Service *service.Service
	Log     *log.Logger

	cluster rafthttp.ClusterConfig

	fileLog   *store.FileLog
	stateMach *kv.StateMachine
	transport *rafthttp.Transport
	rpcServer *rafthttp.Server
	engine    *raft.Engine
	apiServer *APIServer
}

func NewService() *Service {
	return &Service{}
}

func (s *Service) InitProgram(p *program.Program) {
	s.Program = p

	p.AddArgument("id", "the identifier of this cluster member")
}

func (s *Service) DefaultCfg() interface{} {
	return &s.Cfg
}

func (s *Service) ValidateCfg() error {
	return nil
}

func (s *Service) instanceId() raft.PeerId {
	return raft.PeerId(s.Program.ArgumentValue("id"))
}

func (s *Service) loadCluster() (rafthttp.ClusterConfig, error) {
	if s.cluster != nil {
		return s.cluster, nil
	}

	cluster, err := loadClusterFile(s.Cfg.Raft.ClusterFile)
	if err != nil {
		return nil, err
	}

	s.cluster = cluster

	return cluster, nil
}

func (s *Service) ServiceCfg() *service.ServiceCfg {
	cfg := &s.Cfg.Service

	cluster, err := s.loadCluster()
	if err != nil {
		// ServiceCfg cannot return an error; Init will fail loudly with
		// the same error once the process actually starts.
		return cfg
	}

	address := cluster[s.instanceId()]
	host, _, _ := net.SplitHostPort(address)

	if cfg.HTTPServers == nil {
		cfg.HTTPServers = make(map[string]*shttp.ServerCfg)
	}

	cfg.HTTPServers["api"] = &shttp.ServerCfg{
		Address:               net.JoinHostPort(host, "8081"),
		LogSuccessfulRequests: true,
		ErrorHandler:          shttp.JSONErrorHandler,
	}

	return cfg
}

func (s *Service) Init(ss *service.Service) error {
	s.Service = ss
	s.Log = ss.Log

	instanceId := s.instanceId()

	cluster, err := s.loadCluster()
	if err != nil {
		return fmt.Errorf("cannot load cluster file: %w", err)
	}

	address, found := cluster[instanceId]
	if !found {
		return fmt.Errorf("instance %q is not part of the cluster", instanceId)
	}

	logger := s.Log.Child("raft", log.Data{"instance": string(instanceId)})

	dataDir := path.Join(s.Cfg.Raft.DataDirectory, string(instanceId))
	if err := s.initLog(dataDir, logger); err != nil {
		return err
	}

	s.stateMach = kv.NewStateMachine()

	s.transport = rafthttp.NewTransport(instanceId, cluster, kv.Codec{}, logger)

	s.engine = raft.NewEngine(s.fileLog, s.stateMach, s.transport, s.Cfg.Raft.engineCfg(logger))
	s.engine.SetPeerId(instanceId)

	for peerId := range cluster {
		if peerId != instanceId {
			s.engine.AddPeer(peerId)
		}
	}

	s.rpcServer = rafthttp.NewServer(address, s.engine, kv.Codec{}, logger)

	if err := s.initAPIServer(); err != nil {
		return err
	}

	return nil
}

func (s *Service) initLog(dataDir string, logger raft.Logger) error {
	filePath := path.Join(dataDir, "raft-log.json")

	fileLog, err := store.NewFileLog(filePath, kv.Codec{}, logger)
	if err != nil {
		return fmt.Errorf("cannot open raft log: %w", err)
	}

	s.fileLog = fileLog

	return nil
}

func (s *Service) initAPIServer() error {
	api, err := NewAPIServer(s)
	if err != nil {
		return fmt.Errorf("cannot create api server: %w", err)
	}

	s.apiServer = api

	return nil
}

func (s *Service) Start(ss *service.Service) error {
	if err := s.rpcServer.Start(); err != nil {
		return fmt.Errorf("cannot start raft rpc server: %w", err)
	}

	if err := s.engine.Start(ss.ErrorChan()); err != nil {
		return fmt.Errorf("cannot start raft engine: %w", err)
	}

	if err := s.apiServer.Init(); err != nil {
		return fmt.Errorf("cannot initialize api server: %w", err)
	}

	return nil
}

func (s *Service) Stop(ss *service.Service) {
	s.engine.Stop()
	s.rpcServer.Stop()
}

func (s *Service) Terminate(ss *service.Service) {
}
