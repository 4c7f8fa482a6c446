// Package sse implements a Server-Sent Events broker for archive updates.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/starford/perthro/internal/rendernode"
)

// Event types sent to clients.
const (
	TypeDocumentCreated   = "document.created"
	TypeDocumentUpdated   = "document.updated"
	TypeDocumentDeleted   = "document.deleted"
	TypeChangesUpdated    = "changes.updated"
	TypeNavigationUpdated = "navigation.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type archiveEventReq struct {
	kind string
	path string
}

type subscribeReq struct {
	ch     chan []byte
	lastID uint64
}

// record is a sent message kept for Last-Event-ID replay.
type record struct {
	id  uint64
	raw []byte
}

const (
	// replaySize bounds both the replay history and each client buffer, so a
	// full replay never drops messages.
	replaySize        = 64
	heartbeatInterval = 25 * time.Second
)

// Broker manages SSE client connections and broadcasts events.
//
// Every message carries a sequential id. A client reconnecting with
// Last-Event-ID receives the messages it missed, as far back as the replay
// history reaches.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, replay history, navigation throttle timestamp). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	navMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	archiveCh     chan archiveEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. navigation.updated is sent at most once
// per navThrottle.
func NewBroker(navThrottle time.Duration) *Broker {
	if navThrottle <= 0 {
		navThrottle = 2 * time.Second
	}

	b := &Broker{
		navMin:        navThrottle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		archiveCh:     make(chan archiveEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastNav time.Time
	var nextID uint64
	history := make([]record, 0, replaySize)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		nextID++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", nextID, event.Type, payload))
		if len(history) == replaySize {
			history = append(history[:0], history[1:]...)
		}
		history = append(history, record{id: nextID, raw: raw})

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.lastID == 0 {
				continue
			}
			for _, rec := range history {
				if rec.id > req.lastID {
					req.ch <- rec.raw
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.archiveCh:
			data := map[string]string{"path": req.path}
			switch req.kind {
			case "created":
				data["url"] = rendernode.URLForPath(req.path)
				broadcast(Event{Type: TypeDocumentCreated, Data: data})
			case "updated":
				data["url"] = rendernode.URLForPath(req.path)
				broadcast(Event{Type: TypeDocumentUpdated, Data: data})
			case "deleted":
				data["url"] = rendernode.URLForPath(req.path)
				broadcast(Event{Type: TypeDocumentDeleted, Data: data})
			case "ledger":
				broadcast(Event{Type: TypeChangesUpdated, Data: data})
			default:
				continue
			}

			now := time.Now()
			if now.Sub(lastNav) >= b.navMin {
				lastNav = now
				broadcast(Event{Type: TypeNavigationUpdated, Data: map[string]string{}})
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
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a new client that first receives every retained
// message with an id greater than lastID. Zero means no replay.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, replaySize)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, lastID: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
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

// PublishArchiveEvent publishes an index change reported by the watcher
// ("created", "updated", "deleted", or "ledger") followed by a throttled
// navigation.updated event. Its signature matches index.EventCallback.
func (b *Broker) PublishArchiveEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.archiveCh <- archiveEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
// The first message is a comment line so clients see the stream open; idle
// streams get a comment heartbeat. A Last-Event-ID header resumes after
// that id.
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
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
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
