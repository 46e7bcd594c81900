package comp

import (
	"container/list"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mstarongithub/cwc/registry"
	"github.com/mstarongithub/cwc/wayland"
)

// Rect is one damage rectangle in surface-local coordinates
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// Surface is a client drawable. Buffer attachment is double-buffered: attach
// stages a weak reference, commit promotes it. The surface never owns its
// buffer; if the buffer dies between attach and commit the promotion fails
// with a lookup miss instead of touching freed memory.
type Surface struct {
	server   *Server
	client   *ClientState
	resource wayland.Resource

	x, y          int32
	width, height int32
	mapped        bool

	// Staged buffer reference and attach offset
	pending            registry.Handle
	pendingX, pendingY int32
	// Promoted buffer reference
	current registry.Handle

	// Damage accumulated since the last commit, consumed by the renderer
	damage []Rect

	elem       *list.Element // position in client.surfaces
	serverElem *list.Element // position in server.surfaces
	destroyed  bool
	createTime time.Time
}

func (surface *Surface) Position() (x, y int32) {
	s := surface.server
	s.mu.Lock()
	defer s.mu.Unlock()
	return surface.x, surface.y
}

func (surface *Surface) Size() (w, h int32) {
	s := surface.server
	s.mu.Lock()
	defer s.mu.Unlock()
	return surface.width, surface.height
}

func (surface *Surface) Mapped() bool {
	s := surface.server
	s.mu.Lock()
	defer s.mu.Unlock()
	return surface.mapped
}

// CurrentBuffer resolves the committed buffer reference. The miss case is
// normal: the buffer may have been destroyed since the commit.
func (surface *Surface) CurrentBuffer() (*Buffer, bool) {
	s := surface.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if surface.current == registry.None {
		return nil, false
	}
	return s.buffers.Get(surface.current)
}

// Damage returns the rectangles accumulated since the last commit
func (surface *Surface) Damage() []Rect {
	s := surface.server
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Rect, len(surface.damage))
	copy(out, surface.damage)
	return out
}

// Attach stages buffer as the pending reference, replacing whatever was
// staged before. A nil buffer detaches; geometry is not checked here, only
// at commit time does the reference have to resolve.
func (surface *Surface) Attach(buffer *Buffer, x, y int32) {
	s := surface.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if surface.destroyed {
		return
	}
	if buffer == nil {
		surface.pending = registry.None
	} else {
		surface.pending = buffer.handle
	}
	surface.pendingX = x
	surface.pendingY = y
}

// AddDamage records a damage rectangle for the next commit. Degenerate
// rectangles are dropped silently, matching what every client expects.
func (surface *Surface) AddDamage(x, y, width, height int32) {
	if width <= 0 || height <= 0 {
		return
	}
	s := surface.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if surface.destroyed {
		return
	}
	surface.damage = append(surface.damage, Rect{X: x, Y: y, Width: width, Height: height})
}

// Commit promotes the pending buffer reference to current. A stale pending
// reference (buffer destroyed since attach) fails with ErrInvalidState; a
// cleared one unmaps the surface. Prior damage is dropped either way.
func (surface *Surface) Commit() error {
	s := surface.server
	s.mu.Lock()

	if surface.destroyed {
		s.mu.Unlock()
		return fmt.Errorf("commit on destroyed surface: %w", ErrInvalidState)
	}

	var release *Buffer

	if surface.pending == registry.None {
		if prev, ok := s.buffers.Get(surface.current); ok && prev.busy {
			prev.busy = false
			release = prev
		}
		surface.current = registry.None
		surface.mapped = false
		surface.width, surface.height = 0, 0
		surface.damage = nil
		s.mu.Unlock()
		sendRelease(release)
		return nil
	}

	buffer, ok := s.buffers.Get(surface.pending)
	if !ok {
		surface.pending = registry.None
		s.mu.Unlock()
		return fmt.Errorf("attached buffer destroyed before commit: %w", ErrInvalidState)
	}

	if surface.current != surface.pending {
		if prev, ok := s.buffers.Get(surface.current); ok && prev.busy {
			prev.busy = false
			release = prev
		}
	}
	surface.current = surface.pending
	buffer.busy = true
	surface.x += surface.pendingX
	surface.y += surface.pendingY
	surface.pendingX, surface.pendingY = 0, 0
	surface.width = buffer.width
	surface.height = buffer.height
	surface.mapped = true
	surface.damage = nil
	s.mu.Unlock()

	sendRelease(release)
	logrus.WithFields(logrus.Fields{
		"client": surface.client.id,
		"size":   fmt.Sprintf("%dx%d", buffer.width, buffer.height),
	}).Debugln("Surface committed")
	return nil
}

// sendRelease notifies the client outside the server lock
func sendRelease(buffer *Buffer) {
	if buffer == nil {
		return
	}
	if sink, ok := buffer.resource.(wayland.BufferSink); ok {
		sink.Release()
	}
}

// destroy is the single teardown path, reached from explicit destroy and
// from disconnect alike. The counter release happens after the unlink so a
// concurrent traversal never sees a freed-but-still-counted surface.
func (surface *Surface) destroy() {
	s := surface.server
	s.mu.Lock()
	if surface.destroyed {
		s.mu.Unlock()
		return
	}
	surface.destroyed = true

	var release *Buffer
	if prev, ok := s.buffers.Get(surface.current); ok && prev.busy {
		prev.busy = false
		release = prev
	}
	surface.current = registry.None
	surface.pending = registry.None
	surface.damage = nil

	surface.client.surfaces.Remove(surface.elem)
	surface.elem = nil
	s.surfaces.Remove(surface.serverElem)
	surface.serverElem = nil
	surface.client.release(KindSurface)
	s.stats.Surfaces.Dec()
	s.emit(Event{Kind: EventSurfaceDestroyed, Client: surface.client.id})
	s.mu.Unlock()

	sendRelease(release)
	logrus.WithFields(logrus.Fields{
		"client": surface.client.id,
		"lived":  time.Since(surface.createTime).Round(time.Millisecond),
	}).Debugln("Surface destroyed")
}
