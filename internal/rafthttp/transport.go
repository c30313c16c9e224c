package rafthttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coreraft/raft/pkg/raft"
)

// Transport is the reference raft.RPCTransport: each Send call issues
// one HTTP POST on its own goroutine and delivers the response through
// the supplied callback, exactly as the teacher's Server.sendMsg spawns
// s.sendMsgRequest without blocking the caller.
type Transport struct {
	self    raft.PeerId
	cluster ClusterConfig
	codec   CommandCodec
	client  *http.Client
	logger  raft.Logger
}

// NewTransport builds a Transport for self, addressing peers through
// cluster. logger may be nil.
func NewTransport(self raft.PeerId, cluster ClusterConfig, codec CommandCodec, logger raft.Logger) *Transport {
	if logger == nil {
		logger = nopLogger{}
	}

	return &Transport{
		self:    self,
		cluster: cluster,
		codec:   codec,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 10 * time.Second,
		}).DialContext,

		MaxIdleConns: 30,

		IdleConnTimeout:       60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: transport,
	}
}

func (t *Transport) addressOf(peer raft.PeerId) (string, error) {
	address, found := t.cluster[peer]
	if !found {
		return "", fmt.Errorf("unknown peer %q", peer)
	}
	return address, nil
}

func (t *Transport) SendRequestVote(peer raft.PeerId, args raft.RequestVoteArgs, onResponse func(raft.RequestVoteReply, error)) {
	go t.sendRequestVote(peer, args, onResponse)
}

func (t *Transport) sendRequestVote(peer raft.PeerId, args raft.RequestVoteArgs, onResponse func(raft.RequestVoteReply, error)) {
	defer t.recoverPanic("SendRequestVote")

	body, err := encodeJSON(toWireRequestVoteArgs(args))
	if err != nil {
		onResponse(raft.RequestVoteReply{}, fmt.Errorf("cannot encode request: %w", err))
		return
	}

	data, err := t.post(peer, "/raft/request-vote", body)
	if err != nil {
		onResponse(raft.RequestVoteReply{}, err)
		return
	}

	var reply raft.RequestVoteReply
	if err := decodeJSON(data, &reply); err != nil {
		onResponse(raft.RequestVoteReply{}, fmt.Errorf("cannot decode reply: %w", err))
		return
	}

	onResponse(reply, nil)
}

func (t *Transport) SendAppendEntries(peer raft.PeerId, args raft.AppendEntriesArgs, onResponse func(raft.AppendEntriesReply, error)) {
	go t.sendAppendEntries(peer, args, onResponse)
}

func (t *Transport) sendAppendEntries(peer raft.PeerId, args raft.AppendEntriesArgs, onResponse func(raft.AppendEntriesReply, error)) {
	defer t.recoverPanic("SendAppendEntries")

	wireArgs, err := toWireAppendEntriesArgs(t.codec, args)
	if err != nil {
		onResponse(raft.AppendEntriesReply{}, fmt.Errorf("cannot encode request: %w", err))
		return
	}

	body, err := encodeJSON(wireArgs)
	if err != nil {
		onResponse(raft.AppendEntriesReply{}, fmt.Errorf("cannot encode request: %w", err))
		return
	}

	data, err := t.post(peer, "/raft/append-entries", body)
	if err != nil {
		onResponse(raft.AppendEntriesReply{}, err)
		return
	}

	var reply raft.AppendEntriesReply
	if err := decodeJSON(data, &reply); err != nil {
		onResponse(raft.AppendEntriesReply{}, fmt.Errorf("cannot decode reply: %w", err))
		return
	}

	onResponse(reply, nil)
}

func (t *Transport) post(peer raft.PeerId, path string, body []byte) ([]byte, error) {
	address, err := t.addressOf(peer)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s%s", address, path)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cannot create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Raft-Source-Id", string(t.self))

	res, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach %s: %w", peer, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read response from %s: %w", peer, err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request to %s failed with status %d: %s", peer, res.StatusCode, data)
	}

	return data, nil
}

func (t *Transport) recoverPanic(where string) {
	if value := recover(); value != nil {
		t.logger.Error("panic in %s: %v", where, value)
	}
}

// PingPeers issues a lightweight health check against every peer
// concurrently, bounded by ctx, and reports which ones did not
// respond, without blocking indefinitely on any single one of them.
// cmd/raftd does not call it; it is not part of raft.RPCTransport
// itself.
func (t *Transport) PingPeers(ctx context.Context) map[raft.PeerId]error {
	results := make(map[raft.PeerId]error)

	group, gctx := errgroup.WithContext(ctx)
	resultsCh := make(chan struct {
		peer raft.PeerId
		err  error
	}, len(t.cluster))

	for peer := range t.cluster {
		peer := peer
		if peer == t.self {
			continue
		}
		group.Go(func() error {
			err := t.ping(gctx, peer)
			resultsCh <- struct {
				peer raft.PeerId
				err  error
			}{peer, err}
			return nil
		})
	}

	group.Wait()
	close(resultsCh)

	for r := range resultsCh {
		results[r.peer] = r.err
	}

	return results
}

func (t *Transport) ping(ctx context.Context, peer raft.PeerId) error {
	address, err := t.addressOf(peer)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/raft/health", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", res.StatusCode)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(int, string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Error(string, ...interface{})      {}
