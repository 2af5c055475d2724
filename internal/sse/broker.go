// Package sse implements a Server-Sent Events broker for real-time index updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/indexer"
	"github.com/starford/notedex/internal/metrics"
)

// Event types.
const (
	TypeNoteCreated  = "note.created"
	TypeNoteUpdated  = "note.updated"
	TypeNoteDeleted  = "note.deleted"
	TypeIndexChanged = "index.changed"
)

const (
	clientBuffer       = 64
	defaultReplay      = 64
	defaultKeepAlive   = 30 * time.Second
	defaultChangeDelay = 2 * time.Second
)

// noteTypes maps indexer change kinds to event types.
var noteTypes = map[string]string{
	indexer.KindCreated: TypeNoteCreated,
	indexer.KindUpdated: TypeNoteUpdated,
	indexer.KindDeleted: TypeNoteDeleted,
}

// NoteData is the payload of note events.
type NoteData struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// ChangeData is the payload of index.changed: the number of note events
// since the previous index.changed.
type ChangeData struct {
	Changes int `json:"changes"`
}

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets the interval of comment frames sent to idle clients.
// Zero disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		b.keepAlive = d
	}
}

// WithReplay sets how many recent events are kept for clients that
// reconnect with Last-Event-ID. Zero disables replay.
func WithReplay(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.replay = n
		}
	}
}

type noteEventReq struct {
	kind string
	path string
}

type subscribeReq struct {
	ch     chan []byte
	resume bool
	after  uint64
}

type frame struct {
	id  uint64
	msg []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the client set, the replay history and the
// index.changed throttle. Public methods talk to it over channels.
type Broker struct {
	changeMin time.Duration
	keepAlive time.Duration
	replay    int

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteEventCh   chan noteEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. Note events are sent as they arrive;
// index.changed is emitted at most once per changeThrottle, with changes
// that arrive inside the window flushed when it ends.
func NewBroker(changeThrottle time.Duration, opts ...Option) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = defaultChangeDelay
	}

	b := &Broker{
		changeMin:     changeThrottle,
		keepAlive:     defaultKeepAlive,
		replay:        defaultReplay,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan noteEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq        uint64
		history    []frame
		lastChange time.Time
		pending    int
		flushTimer *time.Timer
		flushC     <-chan time.Time
	)
	defer func() {
		if flushTimer != nil {
			flushTimer.Stop()
		}
	}()

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		if b.replay > 0 {
			history = append(history, frame{id: seq, msg: raw})
			if len(history) > b.replay {
				history = history[len(history)-b.replay:]
			}
		}

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
				metrics.SSEDropped.Inc()
			}
		}
	}

	flushChanges := func(now time.Time) {
		lastChange = now
		broadcast(Event{Type: TypeIndexChanged, Data: ChangeData{Changes: pending}})
		pending = 0
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			metrics.SSEClients.Sub(float64(len(clients)))
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			metrics.SSEClients.Inc()
			if !req.resume {
				continue
			}
			for _, f := range history {
				if f.id <= req.after {
					continue
				}
				select {
				case req.ch <- f.msg:
				default:
					metrics.SSEDropped.Inc()
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
				metrics.SSEClients.Dec()
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.noteEventCh:
			typ, ok := noteTypes[req.kind]
			if !ok {
				continue
			}
			broadcast(Event{Type: typ, Data: NoteData{ID: index.NoteID(req.path), Path: req.path}})
			pending++

			now := time.Now()
			if wait := b.changeMin - now.Sub(lastChange); wait <= 0 {
				flushChanges(now)
			} else if flushC == nil {
				flushTimer = time.NewTimer(wait)
				flushC = flushTimer.C
			}

		case <-flushC:
			flushC = nil
			if pending > 0 {
				flushChanges(time.Now())
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscribeReq{})
}

// SubscribeAfter adds a new client and first delivers the retained events
// with an id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscribeReq{resume: true, after: lastID})
}

func (b *Broker) subscribe(req subscribeReq) chan []byte {
	req.ch = make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(req.ch)
		return req.ch
	}

	select {
	case b.subscribeCh <- req:
	case <-b.stopped:
		close(req.ch)
	}

	return req.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a note change and a throttled index.changed event.
// kind is one of the indexer change kinds; others are ignored.
func (b *Broker) PublishNoteEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- noteEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A client that
// reconnects with a Last-Event-ID header receives the events it missed,
// as far as the replay history reaches.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ch chan []byte
	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(last)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		ticker := time.NewTicker(b.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
