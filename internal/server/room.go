package server

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/synapse/internal/database"
	"github.com/npezzotti/synapse/internal/stats"
	"github.com/rs/zerolog"
)

const roomQueueSize = 256

type member struct {
	client *Client
	// userId is the identity announced on join, used for presence.
	userId string
}

// Room exists while it has members or messages waiting to be persisted.
type Room struct {
	id      string
	members map[string]*member
	// pending counts messages queued or in flight to the store.
	pending int
	queue   chan *persistReq
	log     zerolog.Logger
}

type persistReq struct {
	sender *Client
	params database.AppendMessageParams
}

type persistResult struct {
	roomId string
	sender *Client
	params database.AppendMessageParams
	msg    database.Message
	err    error
}

// Broadcaster maps room ids to their members and fans events out to them.
// Chat messages are persisted by one writer goroutine per room before they
// are delivered, so delivery order within a room matches persistence order.
type Broadcaster struct {
	log            zerolog.Logger
	stats          stats.StatsProvider
	store          database.MessageStore
	registry       *Registry
	persistTimeout time.Duration
	rooms          map[string]*Room
	results        chan<- *persistResult
	quit           <-chan struct{}
	writers        sync.WaitGroup
}

func newBroadcaster(logger zerolog.Logger, su stats.StatsProvider, store database.MessageStore,
	persistTimeout time.Duration, results chan<- *persistResult, quit <-chan struct{}) *Broadcaster {
	return &Broadcaster{
		log:            logger,
		stats:          su,
		store:          store,
		persistTimeout: persistTimeout,
		rooms:          make(map[string]*Room),
		results:        results,
		quit:           quit,
	}
}

func (b *Broadcaster) getRoom(id string) (*Room, bool) {
	r, ok := b.rooms[id]
	return r, ok
}

func (b *Broadcaster) loadRoom(id string) *Room {
	if r, ok := b.rooms[id]; ok {
		return r
	}

	r := &Room{
		id:      id,
		members: make(map[string]*member),
		queue:   make(chan *persistReq, roomQueueSize),
		log:     b.log.With().Str("room", id).Logger(),
	}
	b.rooms[id] = r

	b.writers.Add(1)
	go b.runWriter(r)

	b.stats.Incr(stats.NumActiveRooms)
	r.log.Debug().Msg("room created")
	return r
}

// pruneRoom drops r once nothing references it.
func (b *Broadcaster) pruneRoom(r *Room) {
	if len(r.members) > 0 || r.pending > 0 {
		return
	}

	close(r.queue)
	delete(b.rooms, r.id)
	b.stats.Decr(stats.NumActiveRooms)
	r.log.Debug().Msg("room removed")
}

// join adds c to the room and tells existing members that userId is online.
// Joining a room twice is a no-op.
func (b *Broadcaster) join(roomId string, c *Client, userId string) {
	r := b.loadRoom(roomId)
	if _, ok := r.members[c.id]; ok {
		return
	}

	r.members[c.id] = &member{client: c, userId: userId}
	c.rooms[roomId] = struct{}{}
	r.log.Info().Str("conn_id", c.id).Str("user_id", userId).Int("members", len(r.members)).Msg("joined room")

	b.broadcast(r, NewPresence(true, roomId, userId, c))
}

// leave removes c from the room and tells the remaining members that the
// user it joined as is offline.
func (b *Broadcaster) leave(roomId string, c *Client) {
	r, ok := b.rooms[roomId]
	if !ok {
		return
	}

	m, ok := r.members[c.id]
	if !ok || m.client != c {
		return
	}

	delete(r.members, c.id)
	delete(c.rooms, roomId)
	r.log.Info().Str("conn_id", c.id).Int("members", len(r.members)).Msg("left room")

	b.broadcast(r, NewPresence(false, roomId, m.userId, c))
	b.pruneRoom(r)
}

func (b *Broadcaster) leaveAll(c *Client) {
	for roomId := range c.rooms {
		b.leave(roomId, c)
	}
}

// broadcastTyping fans the indicator out to every member except the sender.
func (b *Broadcaster) broadcastTyping(roomId string, c *Client, userId string, isTyping bool) {
	r, ok := b.rooms[roomId]
	if !ok {
		return
	}

	b.broadcast(r, NewTyping(roomId, userId, isTyping, c))
}

// broadcastMessage queues params for persistence. The stored message is
// delivered to all members, sender included, once the store accepts it.
func (b *Broadcaster) broadcastMessage(roomId string, c *Client, params database.AppendMessageParams) {
	r := b.loadRoom(roomId)

	select {
	case r.queue <- &persistReq{sender: c, params: params}:
		r.pending++
	default:
		r.log.Warn().Str("conn_id", c.id).Msg("room write queue full, dropping message")
		b.stats.Incr(stats.NumEventsDropped)
		c.queueMessage(ErrMessageNotSaved(roomId, params.Content))
		b.pruneRoom(r)
	}
}

// handlePersisted completes a broadcastMessage once its store call returns.
func (b *Broadcaster) handlePersisted(res *persistResult) {
	r, ok := b.rooms[res.roomId]
	if !ok {
		b.log.Error().Str("room", res.roomId).Msg("persist result for unknown room")
		return
	}
	r.pending--

	if res.err != nil {
		r.log.Error().Err(res.err).Str("conn_id", res.sender.id).Msg("error saving message")
		b.stats.Incr(stats.NumMessagesFailed)
		if c, ok := b.registry.lookup(res.sender.id); ok && c == res.sender {
			c.queueMessage(ErrMessageNotSaved(res.roomId, res.params.Content))
		}
	} else {
		b.stats.Incr(stats.NumMessagesPersisted)
		b.broadcast(r, NewChatMessage(res.msg))
	}

	b.pruneRoom(r)
}

func (b *Broadcaster) broadcast(r *Room, msg *ServerMessage) {
	r.log.Debug().Str("event", msg.Event).Int("members", len(r.members)).Msg("broadcast")
	for _, m := range r.members {
		if m.client == msg.SkipClient {
			continue
		}

		if !m.client.queueMessage(msg) {
			b.stats.Incr(stats.NumEventsDropped)
		}
	}
}

func (b *Broadcaster) runWriter(r *Room) {
	defer b.writers.Done()

	for req := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.persistTimeout)
		msg, err := b.store.AppendMessage(ctx, req.params)
		cancel()

		select {
		case b.results <- &persistResult{
			roomId: r.id,
			sender: req.sender,
			params: req.params,
			msg:    msg,
			err:    err,
		}:
		case <-b.quit:
			return
		}
	}
}

// closeRooms stops every writer and waits for in-flight store calls.
func (b *Broadcaster) closeRooms() {
	for id, r := range b.rooms {
		close(r.queue)
		delete(b.rooms, id)
	}
	b.writers.Wait()
}
