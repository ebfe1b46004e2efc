package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/coder/quartz"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/config"
)

// GossipService shares lag observations between router instances.
// Each node advertises its freshest heartbeat observations as node
// metadata; peers merge them into their own tracker, where
// last-write-wins by observation time keeps whichever side saw the
// replica more recently. A node cut off from a replica can then keep
// routing on a peer's view instead of failing closed immediately.
type GossipService struct {
	config     *config.GossipConfig
	memberlist *memberlist.Memberlist
	tracker    *LagTracker
	nodeID     string
	clock      quartz.Clock
	logger     *zap.Logger

	pushCancel func()
	pushTicker quartz.Waiter
}

// gossipLagState is the wire form of a node's lag observations.
// Timestamps are unix milliseconds to keep the metadata under
// memberlist's size limit.
type gossipLagState struct {
	NodeID       string              `json:"node_id"`
	Observations []gossipObservation `json:"obs"`
}

type gossipObservation struct {
	ReplicaID   string `json:"r"`
	HeartbeatMs int64  `json:"hb"`
	ObservedMs  int64  `json:"at"`
}

// NewGossipService creates a gossip service and joins the cluster
func NewGossipService(cfg *config.GossipConfig, nodeID string, tracker *LagTracker, clock quartz.Clock, logger *zap.Logger) (*GossipService, error) {
	gs := &GossipService{
		config:  cfg,
		tracker: tracker,
		nodeID:  nodeID,
		clock:   clock,
		logger:  logger,
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = nodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.Delegate = gs
	mlConfig.Events = &gossipEventDelegate{service: gs}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	gs.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		joined, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
		logger.Info("joined gossip cluster", zap.Int("peers", joined))
	}

	return gs, nil
}

// Start begins periodically pushing updated metadata to peers.
// Memberlist only gossips metadata when told it changed, so the push
// loop is what keeps peers' views fresh.
func (s *GossipService) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.pushCancel = cancel
	s.pushTicker = s.clock.TickerFunc(ctx, interval, func() error {
		if err := s.memberlist.UpdateNode(interval); err != nil {
			s.logger.Warn("gossip metadata push failed", zap.Error(err))
		}
		return nil
	}, "gossip", "push")
}

// NodeMeta implements memberlist.Delegate
func (s *GossipService) NodeMeta(limit int) []byte {
	state := s.localState()
	data, err := json.Marshal(state)
	if err != nil {
		return nil
	}

	// Shed the most lagged observations first if the payload does not
	// fit; a truncated JSON document would be unreadable on the far
	// side.
	for len(data) > limit && len(state.Observations) > 0 {
		state.Observations = state.Observations[:len(state.Observations)-1]
		data, err = json.Marshal(state)
		if err != nil {
			return nil
		}
	}
	if len(data) > limit {
		return nil
	}
	return data
}

func (s *GossipService) localState() gossipLagState {
	snapshot := s.tracker.Snapshot()
	state := gossipLagState{
		NodeID:       s.nodeID,
		Observations: make([]gossipObservation, 0, len(snapshot)),
	}
	for id, obs := range snapshot {
		if obs.ObservedAt.IsZero() {
			continue
		}
		state.Observations = append(state.Observations, gossipObservation{
			ReplicaID:   id,
			HeartbeatMs: obs.HeartbeatTS.UnixMilli(),
			ObservedMs:  obs.ObservedAt.UnixMilli(),
		})
	}
	sort.Slice(state.Observations, func(i, j int) bool {
		oi := state.Observations[i].ObservedMs - state.Observations[i].HeartbeatMs
		oj := state.Observations[j].ObservedMs - state.Observations[j].HeartbeatMs
		return oi < oj
	})
	return state
}

// mergeState folds a peer's observations into the local tracker.
// Observations for replicas this node does not serve are dropped by
// the tracker.
func (s *GossipService) mergeState(data []byte, peer string) {
	var state gossipLagState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("unreadable gossip state", zap.String("peer", peer), zap.Error(err))
		return
	}

	for _, obs := range state.Observations {
		s.tracker.ObserveAt(obs.ReplicaID,
			time.UnixMilli(obs.HeartbeatMs),
			time.UnixMilli(obs.ObservedMs))
	}

	s.logger.Debug("merged gossip state",
		zap.String("peer", state.NodeID),
		zap.Int("observations", len(state.Observations)))
}

// NotifyMsg implements memberlist.Delegate
func (s *GossipService) NotifyMsg(data []byte) {
}

// GetBroadcasts implements memberlist.Delegate
func (s *GossipService) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (s *GossipService) LocalState(join bool) []byte {
	data, _ := json.Marshal(s.localState())
	return data
}

// MergeRemoteState implements memberlist.Delegate
func (s *GossipService) MergeRemoteState(buf []byte, join bool) {
	s.mergeState(buf, "remote")
}

// Members returns the current cluster member names
func (s *GossipService) Members() []string {
	members := s.memberlist.Members()
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

// Shutdown leaves the cluster and stops the push loop
func (s *GossipService) Shutdown() error {
	if s.pushCancel != nil {
		s.pushCancel()
		_ = s.pushTicker.Wait("gossip", "push")
	}
	if err := s.memberlist.Leave(time.Second); err != nil {
		s.logger.Warn("gossip leave failed", zap.Error(err))
	}
	return s.memberlist.Shutdown()
}

// gossipEventDelegate handles memberlist events
type gossipEventDelegate struct {
	service *GossipService
}

// NotifyJoin is called when a node joins
func (d *gossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.service.logger.Info("gossip peer joined",
		zap.String("peer", node.Name),
		zap.String("addr", node.Addr.String()))
	if len(node.Meta) > 0 {
		d.service.mergeState(node.Meta, node.Name)
	}
}

// NotifyLeave is called when a node leaves
func (d *gossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.service.logger.Info("gossip peer left", zap.String("peer", node.Name))
}

// NotifyUpdate is called when a node's metadata changes
func (d *gossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	if len(node.Meta) > 0 {
		d.service.mergeState(node.Meta, node.Name)
	}
}
