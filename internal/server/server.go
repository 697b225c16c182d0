package server

import (
	"context"
	"time"

	"github.com/npezzotti/synapse/internal/database"
	"github.com/npezzotti/synapse/internal/stats"
	"github.com/rs/zerolog"
)

const (
	defaultPersistTimeout = 5 * time.Second
	eventQueueSize        = 1024
	resultQueueSize       = 256
)

// SignalingState is the registry, room and call-broker state of one gateway.
// It is only touched from ChatServer.Run.
type SignalingState struct {
	registry *Registry
	rooms    *Broadcaster
	broker   *CallBroker
}

func newSignalingState(logger zerolog.Logger, su stats.StatsProvider, store database.MessageStore,
	persistTimeout time.Duration, results chan<- *persistResult, quit <-chan struct{}) *SignalingState {
	rooms := newBroadcaster(logger, su, store, persistTimeout, results, quit)
	registry := newRegistry(logger, su, rooms)
	rooms.registry = registry

	return &SignalingState{
		registry: registry,
		rooms:    rooms,
		broker:   newCallBroker(logger, su, registry),
	}
}

type clientEvent struct {
	client *Client
	event  Event
}

type stopReq struct {
	done chan struct{}
}

// ChatServer is the gateway: it binds connections to the signaling state and
// dispatches their events from a single goroutine.
type ChatServer struct {
	log          zerolog.Logger
	store        database.MessageStore
	stats        stats.StatsProvider
	state        *SignalingState
	registerChan chan *Client
	// eventChan carries a connection's events and finally its disconnect,
	// so the disconnect is handled after everything it sent before.
	eventChan     chan *clientEvent
	persistedChan chan *persistResult
	stop          chan stopReq
	// quit is closed when the run loop begins shutting down.
	quit chan struct{}
}

func NewChatServer(logger zerolog.Logger, store database.MessageStore, su stats.StatsProvider, persistTimeout time.Duration) (*ChatServer, error) {
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}

	for _, name := range stats.Metrics {
		su.RegisterMetric(name)
	}

	cs := &ChatServer{
		log:           logger,
		store:         store,
		stats:         su,
		registerChan:  make(chan *Client),
		eventChan:     make(chan *clientEvent, eventQueueSize),
		persistedChan: make(chan *persistResult, resultQueueSize),
		stop:          make(chan stopReq),
		quit:          make(chan struct{}),
	}
	cs.state = newSignalingState(logger, su, store, persistTimeout, cs.persistedChan, cs.quit)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.state.registry.register(c)
		case ev := <-cs.eventChan:
			cs.handleEvent(ev.client, ev.event)
		case res := <-cs.persistedChan:
			cs.state.rooms.handlePersisted(res)
		case req := <-cs.stop:
			cs.log.Info().Msg("shutting down chat server")
			close(cs.quit)
			for _, c := range cs.state.registry.clients {
				c.stopClient()
			}
			cs.state.rooms.closeRooms()
			close(req.done)
			return
		}
	}
}

// RegisterClient hands c to the run loop. It returns false if the server is
// shutting down.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.quit:
		return false
	}
}

// Unregister queues c's disconnect behind the events it already dispatched.
// Unlike dispatch it waits for room in the queue rather than dropping.
func (cs *ChatServer) Unregister(c *Client) {
	select {
	case cs.eventChan <- &clientEvent{client: c, event: &disconnect{}}:
	case <-cs.quit:
	}
}

// dispatch queues an event for the run loop, dropping it if the queue is full.
func (cs *ChatServer) dispatch(c *Client, ev Event) {
	select {
	case cs.eventChan <- &clientEvent{client: c, event: ev}:
	case <-cs.quit:
	default:
		c.log.Warn().Msg("event queue full, dropping event")
		cs.stats.Incr(stats.NumEventsDropped)
	}
}

func (cs *ChatServer) handleEvent(c *Client, ev Event) {
	if found, ok := cs.state.registry.lookup(c.id); !ok || found != c {
		c.log.Debug().Msg("dropping event from unregistered connection")
		return
	}

	rooms := cs.state.rooms
	broker := cs.state.broker

	switch e := ev.(type) {
	case *disconnect:
		cs.state.registry.unregister(c)
	case *Join:
		rooms.join(e.Room, c, senderOf(c, e.UserId))
	case *Leave:
		rooms.leave(e.Room, c)
	case *Typing:
		rooms.broadcastTyping(e.Room, c, senderOf(c, e.UserId), e.IsTyping)
	case *SendMessage:
		rooms.broadcastMessage(e.Room, c, database.AppendMessageParams{
			RoomId:   e.Room,
			SenderId: senderOf(c, e.Sender),
			Content:  e.Text,
		})
	case *JoinChat:
		cs.state.registry.alias(c, e.UserId)
	case *CallOffer:
		broker.relayOffer(senderOf(c, e.From), e.To, e.Offer)
	case *CallAnswer:
		broker.relayAnswer(senderOf(c, e.From), e.To, e.Answer)
	case *CallCandidate:
		broker.relayCandidate(senderOf(c, e.From), e.To, e.Candidate)
	case *CallHangup:
		broker.relayHangup(senderOf(c, e.From), e.To)
	default:
		c.log.Warn().Msgf("unhandled event %T", ev)
	}
}

// Shutdown stops the run loop, disconnecting every client and waiting for
// queued messages to finish persisting.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// senderOf prefers the authenticated user over a client-supplied identity,
// falling back to the connection id.
func senderOf(c *Client, claimed string) string {
	if c.userId == "" && claimed != "" {
		return claimed
	}
	return c.identity()
}
