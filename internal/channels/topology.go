package channels

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/connection"
	"github.com/rgledhill/netwatch/internal/envelope"
)

// Topology tracks GNS3 node state over the /topology/ channel.
type Topology struct {
	conn   *connection.Conn
	bus    bus.MessageBus
	logger *slog.Logger

	// Event names subscribed on every (re)connect.
	subscriptions []string

	mu    sync.RWMutex
	nodes map[string]NodeStatus

	sub  bus.Subscription
	done chan struct{}
}

// NewTopology creates the topology adapter. cfg.URL must already be resolved
// to the channel endpoint; cfg.Name is forced to the channel name.
func NewTopology(cfg connection.Config, subscriptions []string, b bus.MessageBus, logger *slog.Logger) *Topology {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Name = NameTopology
	return &Topology{
		conn:          connection.New(cfg, b, logger),
		bus:           b,
		logger:        logger.With("channel", NameTopology),
		subscriptions: subscriptions,
		nodes:         make(map[string]NodeStatus),
		done:          make(chan struct{}),
	}
}

// Start attaches to the bus and opens the connection.
func (t *Topology) Start() {
	t.sub = t.bus.Subscribe(
		bus.ConnMessage(NameTopology),
		bus.ConnState(NameTopology),
	)
	go t.loop()
	t.conn.Connect()
}

// Stop closes the connection and detaches from the bus.
func (t *Topology) Stop() {
	t.conn.Disconnect()
	t.bus.Unsubscribe(t.sub)
	close(t.done)
}

// SubscribeToEvents subscribes to named topology event streams.
func (t *Topology) SubscribeToEvents(names ...string) error {
	return t.conn.Send(envelope.NewSubscribe(names...))
}

// UnsubscribeFromEvents cancels named event stream subscriptions.
func (t *Topology) UnsubscribeFromEvents(names ...string) error {
	return t.conn.Send(envelope.NewUnsubscribe(names...))
}

// RequestTopology asks for a full snapshot, optionally scoped to a project.
func (t *Topology) RequestTopology(projectID string) error {
	return t.conn.Send(envelope.NewTopologyRequest(projectID))
}

// NodeAction starts, stops, or restarts a node.
func (t *Topology) NodeAction(action, projectID, nodeID string) error {
	return t.conn.Send(envelope.NewNodeAction(action, projectID, nodeID))
}

// Nodes returns a copy of the derived node-status map.
func (t *Topology) Nodes() map[string]NodeStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]NodeStatus, len(t.nodes))
	for id, st := range t.nodes {
		out[id] = st
	}
	return out
}

// Node returns the latest status for one node.
func (t *Topology) Node(id string) (NodeStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.nodes[id]
	return st, ok
}

// Name returns the channel name.
func (t *Topology) Name() string { return NameTopology }

// State returns the underlying connection state.
func (t *Topology) State() connection.State { return t.conn.State() }

// Stats returns the underlying connection stats.
func (t *Topology) Stats() connection.Stats { return t.conn.Stats() }

func (t *Topology) loop() {
	for {
		select {
		case <-t.done:
			return
		case msg, ok := <-t.sub:
			if !ok {
				return
			}
			switch m := msg.(type) {
			case envelope.Envelope:
				t.handleEnvelope(m)
			case connection.StateChange:
				if m.State == connection.StateConnected {
					t.onConnected()
				}
			}
		}
	}
}

// onConnected re-establishes server-side subscriptions after every connect,
// including automatic reconnects.
func (t *Topology) onConnected() {
	if len(t.subscriptions) > 0 {
		if err := t.SubscribeToEvents(t.subscriptions...); err != nil {
			t.logger.Warn("subscribe failed", "error", err)
		}
	}
	if err := t.RequestTopology(""); err != nil {
		t.logger.Warn("topology snapshot request failed", "error", err)
	}
}

func (t *Topology) handleEnvelope(env envelope.Envelope) {
	switch env.Type {
	case envelope.TypeGNS3Event:
		var ev envelope.GNS3Event
		if err := env.Decode(&ev); err != nil {
			t.logger.Warn("bad gns3_event payload", "error", err)
			return
		}
		status := envelope.NodeStatusFromEvent(ev.EventType())
		node := ev.NodeData()
		if status == "" || node.NodeID == "" {
			return
		}
		now := time.Now()
		t.mu.Lock()
		t.nodes[node.NodeID] = NodeStatus{Status: status, LastUpdate: now}
		t.mu.Unlock()
		t.bus.Publish(bus.TopicNodeStatus, NodeStatusEvent{NodeID: node.NodeID, Status: status, At: now})

	case envelope.TypeTopologyResponse:
		var resp envelope.TopologyResponse
		if err := env.Decode(&resp); err != nil {
			t.logger.Warn("bad topology_response payload", "error", err)
			return
		}
		now := time.Now()
		t.mu.Lock()
		for _, n := range resp.Nodes {
			if n.NodeID == "" {
				continue
			}
			t.nodes[n.NodeID] = NodeStatus{Status: n.Status, LastUpdate: now}
		}
		t.mu.Unlock()
		t.logger.Debug("topology snapshot applied", "nodes", len(resp.Nodes))

	default:
		// Types belonging to other channels land here too; only log the
		// truly unknown ones.
		if !env.Known() {
			t.logger.Debug("ignoring unknown message type", "type", env.Type)
		}
	}
}
