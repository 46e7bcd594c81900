package comp

import (
	"container/list"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mstarongithub/cwc/registry"
	"github.com/mstarongithub/cwc/stats"
	"github.com/mstarongithub/cwc/wayland"
)

// Shm is the wl_shm global bound on one client connection. It is a factory
// for pools and otherwise stateless.
type Shm struct {
	server   *Server
	client   *ClientState
	resource wayland.Resource
}

// BindShm wires a wl_shm binding for cs and advertises the supported pixel
// formats to it.
func (s *Server) BindShm(cs *ClientState, res wayland.Resource) *Shm {
	shm := &Shm{server: s, client: cs, resource: res}
	res.SetUserData(shm)
	if sink, ok := res.(wayland.ShmSink); ok {
		for _, f := range s.formats {
			sink.Format(f)
		}
	}
	logrus.WithFields(logrus.Fields{
		"client": cs.id,
		"id":     res.ID(),
	}).Debugln("wl_shm bound")
	return shm
}

// Pool is a client-provided memory mapped region. Its lifetime is two-phase:
// the client releasing the pool sets released, the mapping itself stays
// alive until the last derived buffer drops refCount to zero. Only when both
// have happened does the memory get unmapped.
type Pool struct {
	server   *Server
	client   *ClientState
	resource wayland.Resource

	data []byte
	size int32

	// Number of live buffers carved out of this pool
	refCount int
	// Set once the client released the pool resource
	released bool

	buffers    list.List     // *Buffer
	elem       *list.Element // position in client.pools
	mappedElem *list.Element // position in server.mapped, nil once unmapped

	createTime time.Time
}

// CreatePool maps fd for size bytes and hands ownership of the mapping to
// the returned pool. fd is closed before returning on every path, success
// included; the mapping keeps the pages alive on its own.
func (sh *Shm) CreatePool(res wayland.Resource, fd int, size int32) (*Pool, error) {
	s := sh.server
	if size <= 0 || int64(size) > s.conf.Limits.MaxPoolSize {
		unix.Close(fd)
		s.stats.Rejected(stats.ReasonInvalidParam)
		return nil, fmt.Errorf("pool size %d outside (0, %d]: %w", size, s.conf.Limits.MaxPoolSize, ErrInvalidParam)
	}

	s.mu.Lock()
	if err := sh.client.reserve(KindPool); err != nil {
		s.mu.Unlock()
		unix.Close(fd)
		s.stats.Rejected(stats.ReasonQuota)
		return nil, err
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		sh.client.release(KindPool)
		s.mu.Unlock()
		unix.Close(fd)
		s.stats.Rejected(stats.ReasonMapFailure)
		return nil, fmt.Errorf("mmap of %d bytes failed (%v): %w", size, err, ErrResourceCreate)
	}
	unix.Close(fd)

	pool := &Pool{
		server:     s,
		client:     sh.client,
		resource:   res,
		data:       data,
		size:       size,
		createTime: time.Now(),
	}
	pool.buffers.Init()
	pool.elem = sh.client.pools.PushBack(pool)
	pool.mappedElem = s.mapped.PushBack(pool)
	s.stats.Pools.Inc()
	s.stats.MappedBytes.Add(float64(size))
	s.emit(Event{Kind: EventPoolCreated, Client: sh.client.id, Detail: fmt.Sprintf("%d bytes", size)})
	s.mu.Unlock()

	res.SetUserData(pool)
	res.OnDestroy(pool.handleRelease)

	logrus.WithFields(logrus.Fields{
		"client": sh.client.id,
		"size":   size,
	}).Debugln("shm pool mapped")
	return pool, nil
}

func (p *Pool) Size() int32 {
	p.server.mu.Lock()
	defer p.server.mu.Unlock()
	return p.size
}

// Resize grows the pool's mapping in place. Growth-only: every existing
// buffer was validated against the old length, so it stays inside the new
// one. Shrinking would invalidate views and is rejected outright.
func (p *Pool) Resize(newSize int32) error {
	s := p.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.released || p.data == nil {
		return fmt.Errorf("resize of released pool: %w", ErrInvalidState)
	}
	if newSize < p.size {
		s.stats.Rejected(stats.ReasonInvalidParam)
		return fmt.Errorf("pool shrink %d -> %d: %w", p.size, newSize, ErrInvalidParam)
	}
	if int64(newSize) > s.conf.Limits.MaxPoolSize {
		s.stats.Rejected(stats.ReasonInvalidParam)
		return fmt.Errorf("pool size %d exceeds ceiling %d: %w", newSize, s.conf.Limits.MaxPoolSize, ErrInvalidParam)
	}
	if newSize == p.size {
		return nil
	}

	data, err := unix.Mremap(p.data, int(newSize), unix.MREMAP_MAYMOVE)
	if err != nil {
		return fmt.Errorf("mremap %d -> %d bytes failed (%v): %w", p.size, newSize, err, ErrResourceCreate)
	}
	s.stats.MappedBytes.Add(float64(newSize - p.size))
	logrus.WithFields(logrus.Fields{
		"client": p.client.id,
		"old":    p.size,
		"new":    newSize,
	}).Debugln("shm pool resized")
	p.data = data
	p.size = newSize
	return nil
}

// handleRelease runs when the client releases the pool resource or
// disconnects. The quota slot frees immediately; the mapping only goes away
// once no buffer still reads from it.
func (p *Pool) handleRelease() {
	s := p.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	if p.elem != nil {
		p.client.pools.Remove(p.elem)
		p.elem = nil
	}
	p.client.release(KindPool)
	s.stats.Pools.Dec()
	s.emit(Event{Kind: EventPoolReleased, Client: p.client.id})

	if p.refCount == 0 {
		p.unmap()
	} else {
		logrus.WithFields(logrus.Fields{
			"client":  p.client.id,
			"buffers": p.refCount,
		}).Debugln("Pool released with live buffers, unmap deferred")
	}
}

// unmap releases the OS mapping, exactly once. Caller holds server.mu.
func (p *Pool) unmap() {
	if p.mappedElem != nil {
		p.server.mapped.Remove(p.mappedElem)
		p.mappedElem = nil
	}
	if p.data == nil {
		return
	}
	if err := unix.Munmap(p.data); err != nil {
		logrus.WithError(err).WithField("client", p.client.id).Errorln("munmap failed")
	}
	p.data = nil
	p.server.stats.MappedBytes.Sub(float64(p.size))
	p.server.emit(Event{Kind: EventPoolUnmapped, Client: p.client.id})
}

// Buffer is a bounded, zero-copy view into its pool's mapping
type Buffer struct {
	pool     *Pool
	resource wayland.Resource
	handle   registry.Handle

	offset int32
	width  int32
	height int32
	stride int32
	format wayland.Format

	// True while the rendering side reads from the view
	busy bool

	elem       *list.Element // position in pool.buffers
	createTime time.Time
}

// CreateBuffer carves a view out of the pool. Validation runs in a fixed
// order and the first failure wins with nothing mutated: argument ranges,
// advertised format, overflow-checked row span, bounds against the mapping.
func (p *Pool) CreateBuffer(res wayland.Resource, offset, width, height, stride int32, format wayland.Format) (*Buffer, error) {
	s := p.server
	s.mu.Lock()
	buffer, err := p.createBuffer(res, offset, width, height, stride, format)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	res.SetUserData(buffer)
	res.OnDestroy(buffer.destroy)

	logrus.WithFields(logrus.Fields{
		"client": p.client.id,
		"size":   fmt.Sprintf("%dx%d", width, height),
		"format": format,
	}).Debugln("shm buffer created")
	return buffer, nil
}

// createBuffer validates and links the view. Caller holds server.mu.
func (p *Pool) createBuffer(res wayland.Resource, offset, width, height, stride int32, format wayland.Format) (*Buffer, error) {
	s := p.server
	if p.data == nil {
		return nil, fmt.Errorf("buffer from released pool: %w", ErrInvalidState)
	}
	if offset < 0 || width <= 0 || height <= 0 || stride <= 0 {
		s.stats.Rejected(stats.ReasonInvalidParam)
		return nil, fmt.Errorf("buffer geometry %d+%dx%d/%d: %w", offset, width, height, stride, ErrInvalidParam)
	}
	if !s.formatSupported(format) {
		s.stats.Rejected(stats.ReasonBadFormat)
		return nil, fmt.Errorf("format 0x%x: %w", uint32(format), ErrUnsupportedFormat)
	}
	// height and stride are both positive int32, so the int64 product is
	// exact; anything past MaxInt32 can't describe a valid protocol size.
	rowSpan := int64(height) * int64(stride)
	if rowSpan > math.MaxInt32 {
		s.stats.Rejected(stats.ReasonBounds)
		return nil, fmt.Errorf("%dx%d rows: %w", height, stride, ErrOverflow)
	}
	if int64(offset)+rowSpan > int64(p.size) {
		s.stats.Rejected(stats.ReasonBounds)
		return nil, fmt.Errorf("view [%d, %d) outside pool of %d bytes: %w", offset, int64(offset)+rowSpan, p.size, ErrOutOfBounds)
	}

	buffer := &Buffer{
		pool:       p,
		resource:   res,
		offset:     offset,
		width:      width,
		height:     height,
		stride:     stride,
		format:     format,
		createTime: time.Now(),
	}
	p.refCount++
	buffer.elem = p.buffers.PushBack(buffer)
	buffer.handle = s.buffers.Put(buffer)
	s.stats.Buffers.Inc()
	s.emit(Event{Kind: EventBufferCreated, Client: p.client.id, Detail: fmt.Sprintf("%dx%d %s", width, height, format)})
	return buffer, nil
}

// Handle is the weak reference surfaces hold onto the buffer
func (b *Buffer) Handle() registry.Handle { return b.handle }

func (b *Buffer) Width() int32           { return b.width }
func (b *Buffer) Height() int32          { return b.height }
func (b *Buffer) Stride() int32          { return b.stride }
func (b *Buffer) Format() wayland.Format { return b.format }

// Bytes returns the buffer's pixels as a zero-copy slice of the pool
// mapping. Nil once the pool has been torn down.
func (b *Buffer) Bytes() []byte {
	s := b.pool.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.pool.data == nil {
		return nil
	}
	end := int64(b.offset) + int64(b.height)*int64(b.stride)
	return b.pool.data[b.offset:end]
}

// Busy reports whether a committed surface currently reads from the buffer
func (b *Buffer) Busy() bool {
	s := b.pool.server
	s.mu.Lock()
	defer s.mu.Unlock()
	return b.busy
}

// Release marks the buffer no longer in use by the rendering side and tells
// the client it may reuse the memory.
func (b *Buffer) Release() {
	s := b.pool.server
	s.mu.Lock()
	if !b.busy {
		s.mu.Unlock()
		return
	}
	b.busy = false
	s.mu.Unlock()
	if sink, ok := b.resource.(wayland.BufferSink); ok {
		sink.Release()
	}
}

// destroy drops the buffer's pool reference and finishes a deferred pool
// teardown if it held the last one.
func (b *Buffer) destroy() {
	s := b.pool.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.elem == nil {
		return
	}
	b.pool.buffers.Remove(b.elem)
	b.elem = nil
	s.buffers.Drop(b.handle)
	s.stats.Buffers.Dec()
	s.emit(Event{Kind: EventBufferDestroyed, Client: b.pool.client.id})

	if b.pool.refCount == 0 {
		logrus.WithField("client", b.pool.client.id).Fatalln("Pool refcount would go negative")
	}
	b.pool.refCount--
	if b.pool.refCount == 0 && b.pool.released {
		b.pool.unmap()
	}
}
