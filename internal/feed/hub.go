// Package feed pushes timetable events to subscribers over raw TCP
// (newline-delimited JSON) and websockets.
package feed

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 2 * time.Second
	backlog      = 64
)

// Hub fans messages out to TCP and websocket subscribers. Messages are
// queued and written by a single goroutine, so publishers never wait on
// slow clients and each websocket has one writer.
type Hub struct {
	mu        sync.Mutex
	clients   map[net.Conn]struct{}
	wsClients map[*websocket.Conn]struct{}
	log       *zap.Logger

	queue     chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

// NewHub starts the hub's writer. Close stops it.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		clients:   make(map[net.Conn]struct{}),
		wsClients: make(map[*websocket.Conn]struct{}),
		log:       log.Named("feed"),
		queue:     make(chan []byte, backlog),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go h.run()
	return h
}

// Close stops the writer. Queued messages that were not yet written are
// dropped; later publishes are ignored.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.stopped
	})
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			return
		case b := <-h.queue:
			h.broadcast(b)
		}
	}
}

func (h *Hub) Add(conn net.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) AddWS(ws *websocket.Conn) {
	h.mu.Lock()
	h.wsClients[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.wsClients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// Publish broadcasts a timetable event.
func (h *Hub) Publish(ev Event) {
	if ev.Type == "" {
		ev.Type = TypeTimetableCreated
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.BroadcastJSON(ev)
}

// BroadcastJSON queues v as one JSON line for every client. When the
// queue is full the message is dropped.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("marshal broadcast", zap.Error(err))
		return
	}
	b = append(b, '\n')

	select {
	case <-h.done:
	case h.queue <- b:
	default:
		h.log.Warn("feed backlog full, dropping message", zap.Int("backlog", backlog))
	}
}

// broadcast writes b to a snapshot of the clients, outside the lock.
// Clients that fail to take the write are dropped.
func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	tcp := make([]net.Conn, 0, len(h.clients))
	for c := range h.clients {
		tcp = append(tcp, c)
	}
	ws := make([]*websocket.Conn, 0, len(h.wsClients))
	for c := range h.wsClients {
		ws = append(ws, c)
	}
	h.mu.Unlock()

	for _, c := range tcp {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		w := bufio.NewWriter(c)
		if _, err := w.Write(b); err != nil {
			h.dropTCP(c, err)
			continue
		}
		if err := w.Flush(); err != nil {
			h.dropTCP(c, err)
		}
	}

	for _, c := range ws {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			h.log.Debug("dropping websocket client", zap.Error(err))
			h.mu.Lock()
			delete(h.wsClients, c)
			h.mu.Unlock()
			_ = c.Close()
		}
	}
}

func (h *Hub) dropTCP(c net.Conn, err error) {
	h.log.Debug("dropping tcp client", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.Close()
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TCPClients: len(h.clients),
		WSClients:  len(h.wsClients),
	}
}

type welcome struct {
	Type      string `json:"type"`
	Transport string `json:"transport"`
	Clients   int    `json:"clients"`
}

func (h *Hub) welcome(transport string) []byte {
	s := h.Stats()
	b, _ := json.Marshal(welcome{Type: "welcome", Transport: transport, Clients: s.TCPClients + s.WSClients})
	return append(b, '\n')
}

// Welcome greets a TCP client before it is added to the hub.
func (h *Hub) Welcome(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = conn.Write(h.welcome("tcp"))
}
