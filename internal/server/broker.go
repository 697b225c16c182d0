package server

import (
	"encoding/json"

	"github.com/npezzotti/synapse/internal/stats"
	"github.com/rs/zerolog"
)

// CallBroker relays WebRTC negotiation between peers addressed by id. It keeps
// no call state: a signal for a peer that is not connected is dropped.
type CallBroker struct {
	log      zerolog.Logger
	stats    stats.StatsProvider
	registry *Registry
}

func newCallBroker(logger zerolog.Logger, su stats.StatsProvider, registry *Registry) *CallBroker {
	return &CallBroker{
		log:      logger,
		stats:    su,
		registry: registry,
	}
}

func (b *CallBroker) relayOffer(from, to string, offer json.RawMessage) int {
	return b.relay(EventCallOffer, to, CallRelay{From: from, Offer: offer})
}

func (b *CallBroker) relayAnswer(from, to string, answer json.RawMessage) int {
	return b.relay(EventCallAnswer, to, CallRelay{From: from, Answer: answer})
}

func (b *CallBroker) relayCandidate(from, to string, candidate json.RawMessage) int {
	return b.relay(EventCallCandidate, to, CallRelay{From: from, Candidate: candidate})
}

func (b *CallBroker) relayHangup(from, to string) int {
	return b.relay(EventCallHangup, to, CallRelay{From: from})
}

// relay forwards payload to every connection addressable as to and returns
// how many accepted it.
func (b *CallBroker) relay(event, to string, payload CallRelay) int {
	peers := b.registry.lookupPeers(to)
	if len(peers) == 0 {
		b.log.Debug().Str("event", event).Str("from", payload.From).Str("to", to).Msg("peer not connected, dropping signal")
		b.stats.Incr(stats.NumSignalsDropped)
		return 0
	}

	msg := NewCallRelay(event, payload)
	delivered := 0
	for _, p := range peers {
		if p.queueMessage(msg) {
			delivered++
		}
	}

	b.log.Debug().Str("event", event).Str("from", payload.From).Str("to", to).Int("delivered", delivered).Msg("relayed signal")
	b.stats.Incr(stats.NumSignalsRelayed)
	return delivered
}
