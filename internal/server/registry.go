package server

import (
	"github.com/npezzotti/synapse/internal/stats"
	"github.com/rs/zerolog"
)

// Registry tracks live connections by connection id and by the peer ids they
// can be addressed with for call signaling.
type Registry struct {
	log     zerolog.Logger
	stats   stats.StatsProvider
	rooms   *Broadcaster
	clients map[string]*Client
	peers   map[string]map[*Client]struct{}
}

func newRegistry(logger zerolog.Logger, su stats.StatsProvider, rooms *Broadcaster) *Registry {
	return &Registry{
		log:     logger,
		stats:   su,
		rooms:   rooms,
		clients: make(map[string]*Client),
		peers:   make(map[string]map[*Client]struct{}),
	}
}

// register adds c. Registering a second client under the same id replaces
// the first.
func (r *Registry) register(c *Client) {
	if prev, ok := r.clients[c.id]; ok {
		if prev == c {
			return
		}
		r.log.Warn().Str("conn_id", c.id).Msg("replacing registered connection")
		r.unregister(prev)
	}

	r.clients[c.id] = c
	if c.userId != "" {
		r.addPeer(c.userId, c)
	}
	r.stats.Incr(stats.NumActiveConnections)
	r.log.Info().Str("conn_id", c.id).Str("user_id", c.userId).Int("clients", len(r.clients)).Msg("connection registered")
}

// lookup reports whether id is a live connection. A miss means the
// connection is already gone.
func (r *Registry) lookup(id string) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// lookupPeers returns every live connection addressable as id, either
// through a user id or as its own connection id.
func (r *Registry) lookupPeers(id string) []*Client {
	var found []*Client
	for c := range r.peers[id] {
		found = append(found, c)
	}

	if c, ok := r.clients[id]; ok {
		if _, dup := r.peers[id][c]; !dup {
			found = append(found, c)
		}
	}

	return found
}

// alias makes c addressable under peerId in addition to its own ids.
func (r *Registry) alias(c *Client, peerId string) {
	if r.clients[c.id] != c {
		return
	}

	c.peerIds[peerId] = struct{}{}
	r.addPeer(peerId, c)
	r.log.Debug().Str("conn_id", c.id).Str("peer_id", peerId).Msg("peer id registered")
}

// unregister removes c, leaving every room it joined.
func (r *Registry) unregister(c *Client) {
	if r.clients[c.id] != c {
		return
	}

	delete(r.clients, c.id)
	if c.userId != "" {
		r.removePeer(c.userId, c)
	}
	for peerId := range c.peerIds {
		r.removePeer(peerId, c)
	}

	r.rooms.leaveAll(c)
	c.stopClient()

	r.stats.Decr(stats.NumActiveConnections)
	r.log.Info().Str("conn_id", c.id).Int("clients", len(r.clients)).Msg("connection unregistered")
}

func (r *Registry) addPeer(peerId string, c *Client) {
	if r.peers[peerId] == nil {
		r.peers[peerId] = make(map[*Client]struct{})
	}
	r.peers[peerId][c] = struct{}{}
}

func (r *Registry) removePeer(peerId string, c *Client) {
	if clients, ok := r.peers[peerId]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(r.peers, peerId)
		}
	}
}
