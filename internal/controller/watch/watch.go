// Package watch serves a read-only HTTP+WebSocket view of cluster state:
// one endpoint per list surface (jobs, nodes, partitions), each pushing an
// initial snapshot followed by a stream of events.Broker events filtered to
// that resource kind. This is the transport a GUI dashboard would consume;
// the dashboard itself is out of scope.
package watch

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ridgehpc/ridge/internal/events"
	"github.com/ridgehpc/ridge/internal/log"
)

// Lister provides the snapshots a new watcher needs before it starts
// receiving live events, satisfied by *controller.Controller.
type Lister interface {
	SnapshotJobs() ([]JobView, error)
	SnapshotNodes() ([]NodeView, error)
	SnapshotPartitions() ([]PartitionView, error)
}

// JobView, NodeView and PartitionView are the JSON shapes sent over the
// watch surface; kept separate from rpcwire's request/response types since
// the transport is HTTP/JSON, not the gRPC wire codec.
type JobView struct {
	ID        uint64 `json:"id"`
	User      string `json:"user"`
	Partition string `json:"partition"`
	State     string `json:"state"`
}

type NodeView struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	CPUs     int    `json:"cpus"`
	CPUsFree int    `json:"cpus_free"`
}

type PartitionView struct {
	Name         string `json:"name"`
	Availability string `json:"availability"`
	NodeCount    int    `json:"node_count"`
}

// frame is one message sent down a watch socket: either the initial
// snapshot (Kind "snapshot") or a live event (Kind "event").
type frame struct {
	Kind  string       `json:"kind"`
	Snap  interface{}  `json:"snapshot,omitempty"`
	Event *events.Event `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires a Lister and an events.Broker to an HTTP handler exposing
// /watch/jobs, /watch/nodes and /watch/partitions.
type Server struct {
	lister Lister
	broker *events.Broker
	router *mux.Router
}

// NewServer builds the watch surface's HTTP handler.
func NewServer(lister Lister, broker *events.Broker) *Server {
	s := &Server{lister: lister, broker: broker, router: mux.NewRouter()}
	s.router.HandleFunc("/watch/jobs", s.handleJobs)
	s.router.HandleFunc("/watch/nodes", s.handleNodes)
	s.router.HandleFunc("/watch/partitions", s.handlePartitions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lister.SnapshotJobs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.stream(w, r, snap, func(e *events.Event) bool {
		return strings.HasPrefix(string(e.Type), "job.")
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lister.SnapshotNodes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.stream(w, r, snap, func(e *events.Event) bool {
		return strings.HasPrefix(string(e.Type), "node.")
	})
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lister.SnapshotPartitions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.stream(w, r, snap, func(e *events.Event) bool { return false })
}

// stream upgrades the request to a WebSocket, writes the initial snapshot,
// then relays broker events matching keep until the client disconnects.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, snap interface{}, keep func(*events.Event) bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithComponent("watch").Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(frame{Kind: "snapshot", Snap: snap}); err != nil {
		return
	}

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	// A reader goroutine is required so gorilla/websocket processes
	// control frames (close, pong) and we notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if !keep(ev) {
				continue
			}
			if err := conn.WriteJSON(frame{Kind: "event", Event: ev}); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
