package main

import (
	"fmt"
	"os"
	"time"

	jsonvalidator "github.com/galdor/go-json-validator"
	"github.com/galdor/go-service/pkg/service"
	"gopkg.in/yaml.v3"

	"github.com/coreraft/raft/internal/rafthttp"
	"github.com/coreraft/raft/pkg/raft"
)

// ServiceCfg is the top-level JSON configuration document, following
// the teacher's cmd/kvstore/service.go ServiceCfg/RaftCfg split.
type ServiceCfg struct {
	Service service.ServiceCfg `json:"service"`
	Raft    RaftCfg            `json:"raft"`
}

// RaftCfg holds everything specific to the consensus engine and its
// collaborators. Peer addressing itself lives in a separate YAML file
// (ClusterFile) rather than inline, so operators can share one cluster
// topology document across every instance's config.
type RaftCfg struct {
	DataDirectory string `json:"dataDirectory"`
	ClusterFile   string `json:"clusterFile"`

	ElectionTimeoutFixedMs  int64 `json:"electionTimeoutFixedMs"`
	ElectionTimeoutRandomMs int64 `json:"electionTimeoutRandomMs"`
	HeartbeatIntervalMs     int64 `json:"heartbeatIntervalMs"`
}

func (cfg *ServiceCfg) ValidateJSON(v *jsonvalidator.Validator) {
	v.CheckObject("service", &cfg.Service)

	v.CheckObject("raft", &cfg.Raft)
}

func (cfg *RaftCfg) ValidateJSON(v *jsonvalidator.Validator) {
	v.CheckStringNotEmpty("dataDirectory", cfg.DataDirectory)
	v.CheckStringNotEmpty("clusterFile", cfg.ClusterFile)
}

func (cfg *RaftCfg) engineCfg(logger raft.Logger) raft.EngineCfg {
	engineCfg := raft.EngineCfg{Logger: logger}

	if cfg.ElectionTimeoutFixedMs > 0 {
		engineCfg.ElectionTimeoutFixed = time.Duration(cfg.ElectionTimeoutFixedMs) * time.Millisecond
	}
	if cfg.ElectionTimeoutRandomMs > 0 {
		engineCfg.ElectionTimeoutRandom = time.Duration(cfg.ElectionTimeoutRandomMs) * time.Millisecond
	}
	if cfg.HeartbeatIntervalMs > 0 {
		engineCfg.HeartbeatInterval = time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond
	}

	return engineCfg
}

// loadClusterFile reads the cluster.yaml topology document:
//
//	node-1: 10.0.0.1:8080
//	node-2: 10.0.0.2:8080
func loadClusterFile(filePath string) (rafthttp.ClusterConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filePath, err)
	}

	var addresses map[string]string
	if err := yaml.Unmarshal(data, &addresses); err != nil {
		return nil, fmt.Errorf("cannot decode yaml data from %s: %w", filePath, err)
	}

	cluster := make(rafthttp.ClusterConfig, len(addresses))
	for id, address := range addresses {
		cluster[raft.PeerId(id)] = address
	}

	return cluster, nil
}
