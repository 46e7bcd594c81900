// Package comp implements the compositor core: the server context that owns
// every live protocol object, per-client resource accounting, the shm
// pool/buffer subsystem and the surface/output/compositor lifecycles. The
// wire protocol itself lives behind the interfaces in the wayland package.
package comp

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mstarongithub/cwc/config"
	"github.com/mstarongithub/cwc/registry"
	"github.com/mstarongithub/cwc/stats"
	"github.com/mstarongithub/cwc/util/multiplexer"
	"github.com/mstarongithub/cwc/wayland"
)

// Event is a lifecycle notification published on Server.Events. Consumers
// that fall behind lose events rather than stalling the dispatch path.
type Event struct {
	Kind   string
	Client uint64
	Detail string
}

const (
	EventClientConnected    = "client-connected"
	EventClientDisconnected = "client-disconnected"
	EventSurfaceCreated     = "surface-created"
	EventSurfaceDestroyed   = "surface-destroyed"
	EventPoolCreated        = "pool-created"
	EventPoolReleased       = "pool-released"
	EventPoolUnmapped       = "pool-unmapped"
	EventBufferCreated      = "buffer-created"
	EventBufferDestroyed    = "buffer-destroyed"
)

// Server is the root of ownership. It holds every live client, the
// process-wide outputs and the buffer handle table surfaces weakly reference
// into. One mutex serializes all mutation; request dispatch is expected to
// come from a single stream, the lock is what keeps the repl and any
// threaded transport honest.
type Server struct {
	mu sync.Mutex

	conf    config.Config
	clients list.List // *ClientState
	outputs []*Output
	// All live surfaces across clients, for shutdown-time traversal
	surfaces list.List // *Surface
	// Every live mapping, including pools the client already released but
	// buffers still keep mapped. A pool leaves client.pools at release and
	// leaves this list only at the real unmap.
	mapped list.List // *Pool
	// Owning table behind every weak buffer reference
	buffers *registry.Table[Buffer]
	// Pixel formats advertised on wl_shm bind, fixed at startup
	formats []wayland.Format

	stats        *stats.Stats
	events       *multiplexer.OneToMany[Event]
	startTime    time.Time
	nextClientID uint64
}

// New builds a server from conf. Outputs are created here, once, and live
// until Shutdown; reg may be nil to skip metrics registration.
func New(conf config.Config, reg prometheus.Registerer) (*Server, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParam, err)
	}

	server := &Server{
		conf:      conf,
		buffers:   registry.NewTable[Buffer](),
		formats:   []wayland.Format{wayland.FormatARGB8888, wayland.FormatXRGB8888},
		stats:     stats.New(reg),
		events:    multiplexer.NewOneToMany[Event](),
		startTime: time.Now(),
	}
	server.clients.Init()
	server.surfaces.Init()
	server.mapped.Init()

	for _, oc := range conf.Outputs {
		output, err := newOutput(server, oc)
		if err != nil {
			return nil, err
		}
		server.outputs = append(server.outputs, output)
		logrus.WithFields(logrus.Fields{
			"output": output.Name(),
			"mode":   fmt.Sprintf("%dx%d@%d", oc.Width, oc.Height, oc.RefreshRate),
		}).Infoln("Output configured")
	}

	logrus.WithFields(logrus.Fields{
		"socket":      conf.SocketName,
		"max_clients": conf.Limits.MaxClients,
	}).Infoln("Compositor core initialized")
	return server, nil
}

// AdmitClient is the admission check for a fresh connection. It runs before
// any protocol object exists for the client and fails with ErrResourceLimit
// once the global client ceiling is reached.
func (s *Server) AdmitClient(client wayland.Client) (*ClientState, error) {
	s.mu.Lock()
	if uint32(s.clients.Len()) >= s.conf.Limits.MaxClients {
		s.mu.Unlock()
		s.stats.Rejected(stats.ReasonClientLimit)
		logrus.WithField("max_clients", s.conf.Limits.MaxClients).Warnln("Client rejected, ceiling reached")
		return nil, fmt.Errorf("client ceiling %d reached: %w", s.conf.Limits.MaxClients, ErrResourceLimit)
	}

	s.nextClientID++
	state := &ClientState{
		server:      s,
		client:      client,
		id:          s.nextClientID,
		connectTime: time.Now(),
	}
	state.surfaces.Init()
	state.pools.Init()
	state.elem = s.clients.PushBack(state)
	s.stats.Clients.Inc()
	s.emit(Event{Kind: EventClientConnected, Client: state.id})
	s.mu.Unlock()

	// The transport destroys the client's resources before this fires, so
	// by the time removeClient runs the counters are back at zero.
	client.OnDisconnect(func() { s.removeClient(state) })

	logrus.WithField("client", state.id).Infoln("Client connected")
	return state, nil
}

func (s *Server) removeClient(state *ClientState) {
	s.mu.Lock()
	if state.elem == nil {
		s.mu.Unlock()
		return
	}
	s.clients.Remove(state.elem)
	state.elem = nil
	if state.surfaceCount != 0 || state.poolCount != 0 {
		// Resource destructors ran before disconnect, so anything left here
		// means a destructor was skipped somewhere.
		logrus.WithFields(logrus.Fields{
			"client":   state.id,
			"surfaces": state.surfaceCount,
			"pools":    state.poolCount,
		}).Errorln("Client removed with live resource counters")
	}
	s.stats.Clients.Dec()
	s.emit(Event{Kind: EventClientDisconnected, Client: state.id})
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"client":    state.id,
		"connected": time.Since(state.connectTime).Round(time.Millisecond),
	}).Infoln("Client disconnected")
}

// Outputs returns the process-wide output records
func (s *Server) Outputs() []*Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Output, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Formats returns the pixel formats advertised to clients
func (s *Server) Formats() []wayland.Format {
	out := make([]wayland.Format, len(s.formats))
	copy(out, s.formats)
	return out
}

func (s *Server) formatSupported(f wayland.Format) bool {
	for _, sf := range s.formats {
		if sf == f {
			return true
		}
	}
	return false
}

// Events exposes the lifecycle event fanout, e.g. for the repl watch command
func (s *Server) Events() *multiplexer.OneToMany[Event] {
	return s.events
}

// emit publishes ev to all subscribers. Caller holds s.mu; Send never blocks.
func (s *Server) emit(ev Event) {
	s.events.Send(ev)
}

// Snapshot is a point-in-time view of the live object graph for the repl
// stats command.
type Snapshot struct {
	Clients     int
	Surfaces    int
	Pools       int
	Buffers     int
	MappedBytes int64
	Uptime      time.Duration
}

func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Clients:  s.clients.Len(),
		Surfaces: s.surfaces.Len(),
		Buffers:  s.buffers.Len(),
		Uptime:   time.Since(s.startTime),
	}
	for e := s.clients.Front(); e != nil; e = e.Next() {
		snap.Pools += e.Value.(*ClientState).pools.Len()
	}
	for e := s.mapped.Front(); e != nil; e = e.Next() {
		snap.MappedBytes += int64(e.Value.(*Pool).size)
	}
	return snap
}

// Clients returns the connected client states in connection order
func (s *Server) Clients() []*ClientState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ClientState, 0, s.clients.Len())
	for e := s.clients.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*ClientState))
	}
	return out
}

// Shutdown tears the context down at process exit. Clients still connected
// at this point are the transport's problem; anything still mapped is
// unmapped here so the process never exits holding client memory.
func (s *Server) Shutdown() {
	s.mu.Lock()
	leakedPools := 0
	for s.mapped.Len() > 0 {
		s.mapped.Front().Value.(*Pool).unmap()
		leakedPools++
	}
	clients := s.clients.Len()
	surfaces := s.surfaces.Len()
	s.mu.Unlock()

	if clients > 0 || surfaces > 0 || leakedPools > 0 {
		logrus.WithFields(logrus.Fields{
			"clients":  clients,
			"surfaces": surfaces,
			"pools":    leakedPools,
		}).Warnln("Shutting down with live objects")
	}
	s.events.Close()
	logrus.WithField("uptime", time.Since(s.startTime).Round(time.Second)).Infoln("Compositor core shut down")
}
