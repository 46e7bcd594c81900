package comp

import (
	"container/list"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mstarongithub/cwc/wayland"
)

// ResourceKind names the per-client quota buckets
type ResourceKind int

const (
	KindSurface ResourceKind = iota
	KindPool
)

func (k ResourceKind) String() string {
	switch k {
	case KindSurface:
		return "surface"
	case KindPool:
		return "pool"
	}
	return "unknown"
}

// ClientState is the server-side record for one connection: its quota
// counters and the collections owning its surfaces and pools. Created on
// admission, removed when the transport reports the disconnect.
type ClientState struct {
	server *Server
	client wayland.Client
	id     uint64
	elem   *list.Element // position in server.clients, nil once removed

	surfaceCount uint32
	poolCount    uint32
	surfaces     list.List // *Surface
	pools        list.List // *Pool

	connectTime time.Time
}

func (cs *ClientState) ID() uint64 { return cs.id }

func (cs *ClientState) ConnectTime() time.Time { return cs.connectTime }

// SurfaceCount returns the number of live surfaces the client holds
func (cs *ClientState) SurfaceCount() uint32 {
	cs.server.mu.Lock()
	defer cs.server.mu.Unlock()
	return cs.surfaceCount
}

// PoolCount returns the number of live shm pools the client holds
func (cs *ClientState) PoolCount() uint32 {
	cs.server.mu.Lock()
	defer cs.server.mu.Unlock()
	return cs.poolCount
}

// reserve is the check-then-increment for one quota bucket, a single atomic
// step under the server lock. Caller holds server.mu.
func (cs *ClientState) reserve(kind ResourceKind) error {
	var count *uint32
	var ceiling uint32
	switch kind {
	case KindSurface:
		count = &cs.surfaceCount
		ceiling = cs.server.conf.Limits.MaxSurfacesPerClient
	case KindPool:
		count = &cs.poolCount
		ceiling = cs.server.conf.Limits.MaxPoolsPerClient
	}
	if *count >= ceiling {
		logrus.WithFields(logrus.Fields{
			"client":  cs.id,
			"kind":    kind,
			"ceiling": ceiling,
		}).Warnln("Client hit resource ceiling")
		return fmt.Errorf("%s ceiling %d reached for client %d: %w", kind, ceiling, cs.id, ErrResourceLimit)
	}
	*count++
	return nil
}

// release undoes a reservation on destruction. A counter that would go
// negative is a corrupted graph, not a client error, so the server dies
// rather than keep mutating it. Caller holds server.mu.
func (cs *ClientState) release(kind ResourceKind) {
	var count *uint32
	switch kind {
	case KindSurface:
		count = &cs.surfaceCount
	case KindPool:
		count = &cs.poolCount
	}
	if *count == 0 {
		logrus.WithFields(logrus.Fields{
			"client": cs.id,
			"kind":   kind,
		}).Fatalln("Resource counter would go negative")
	}
	*count--
}
