package wayland

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalClient is an in-process transport client. It hands out resources and
// replays the teardown ordering a real wire transport provides: on
// disconnect every live resource is destroyed newest-first, then the
// disconnect callbacks run. The repl's demo clients and the test suite both
// drive the compositor core through it.
type LocalClient struct {
	mu           sync.Mutex
	nextID       uint32
	resources    []*LocalResource
	onDisconnect []func()
	disconnected bool
}

func NewLocalClient() *LocalClient {
	return &LocalClient{nextID: 1}
}

func (c *LocalClient) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

// NewResource allocates the next object id on this connection.
func (c *LocalClient) NewResource(version uint32) *LocalResource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		logrus.Warnln("resource requested on disconnected local client")
		return nil
	}
	res := &LocalResource{
		client:  c,
		id:      c.nextID,
		version: version,
	}
	c.nextID++
	c.resources = append(c.resources, res)
	return res
}

// Disconnect simulates the connection going away. Resources die newest-first
// so children (buffers, surfaces) go before the globals they came from.
func (c *LocalClient) Disconnect() {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	resources := c.resources
	c.resources = nil
	fns := c.onDisconnect
	c.onDisconnect = nil
	c.mu.Unlock()

	for i := len(resources) - 1; i >= 0; i-- {
		resources[i].Destroy()
	}
	for _, fn := range fns {
		fn()
	}
}

func (c *LocalClient) remove(res *LocalResource) {
	c.mu.Lock()
	for i, r := range c.resources {
		if r == res {
			c.resources = append(c.resources[:i], c.resources[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// LocalResource implements Resource. It also implements every event sink so
// callers can inspect what the core sent via Sent.
type LocalResource struct {
	client  *LocalClient
	id      uint32
	version uint32

	mu        sync.Mutex
	userData  any
	onDestroy []func()
	destroyed bool
	sent      []any
}

func (r *LocalResource) ID() uint32      { return r.id }
func (r *LocalResource) Version() uint32 { return r.version }
func (r *LocalResource) Client() Client  { return r.client }

func (r *LocalResource) SetUserData(v any) {
	r.mu.Lock()
	r.userData = v
	r.mu.Unlock()
}

func (r *LocalResource) UserData() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userData
}

func (r *LocalResource) OnDestroy(fn func()) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		logrus.WithField("id", r.id).Warnln("destroy handler registered on dead resource")
		return
	}
	r.onDestroy = append(r.onDestroy, fn)
	r.mu.Unlock()
}

// Destroy runs the registered destructors in reverse registration order.
// Repeat calls are no-ops, the destroyed flag is checked before any cascade.
func (r *LocalResource) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	fns := r.onDestroy
	r.onDestroy = nil
	r.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
	if !r.client.disconnectedNow() {
		r.client.remove(r)
	}
}

func (r *LocalResource) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// Sent returns every event the core pushed at this resource, in order.
func (r *LocalResource) Sent() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *LocalResource) record(ev any) {
	r.mu.Lock()
	r.sent = append(r.sent, ev)
	r.mu.Unlock()
}

// Event sink implementations.

func (r *LocalResource) Geometry(g OutputGeometry) { r.record(g) }
func (r *LocalResource) Mode(m OutputMode)         { r.record(m) }
func (r *LocalResource) Done()                     { r.record("done") }
func (r *LocalResource) Format(f Format)           { r.record(f) }
func (r *LocalResource) Release()                  { r.record("release") }

func (c *LocalClient) disconnectedNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
