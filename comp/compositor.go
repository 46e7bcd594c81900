package comp

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mstarongithub/cwc/stats"
	"github.com/mstarongithub/cwc/wayland"
)

// Compositor is the wl_compositor global bound on one connection, a
// stateless factory for surfaces and regions.
type Compositor struct {
	server   *Server
	client   *ClientState
	resource wayland.Resource
}

func (s *Server) BindCompositor(cs *ClientState, res wayland.Resource) *Compositor {
	compositor := &Compositor{server: s, client: cs, resource: res}
	res.SetUserData(compositor)
	logrus.WithFields(logrus.Fields{
		"client": cs.id,
		"id":     res.ID(),
	}).Debugln("wl_compositor bound")
	return compositor
}

// CreateSurface makes a new drawable for the binding's client, counted
// against its surface quota.
func (c *Compositor) CreateSurface(res wayland.Resource) (*Surface, error) {
	s := c.server
	s.mu.Lock()
	if err := c.client.reserve(KindSurface); err != nil {
		s.mu.Unlock()
		s.stats.Rejected(stats.ReasonQuota)
		return nil, err
	}

	surface := &Surface{
		server:     s,
		client:     c.client,
		resource:   res,
		createTime: time.Now(),
	}
	surface.elem = c.client.surfaces.PushBack(surface)
	surface.serverElem = s.surfaces.PushBack(surface)
	s.stats.Surfaces.Inc()
	s.emit(Event{Kind: EventSurfaceCreated, Client: c.client.id})
	s.mu.Unlock()

	res.SetUserData(surface)
	res.OnDestroy(surface.destroy)

	logrus.WithFields(logrus.Fields{
		"client": c.client.id,
		"id":     res.ID(),
	}).Debugln("Surface created")
	return surface, nil
}

// Region is an accumulated set of rectangle operations. The core treats it
// as opaque geometry for the rendering side, nothing here interprets it.
type Region struct {
	server   *Server
	resource wayland.Resource
	ops      []RegionOp
}

type RegionOp struct {
	Add  bool
	Rect Rect
}

func (c *Compositor) CreateRegion(res wayland.Resource) *Region {
	region := &Region{server: c.server, resource: res}
	res.SetUserData(region)
	res.OnDestroy(func() {
		c.server.mu.Lock()
		region.ops = nil
		c.server.mu.Unlock()
	})
	return region
}

func (r *Region) Add(rect Rect) {
	if rect.Width <= 0 || rect.Height <= 0 {
		return
	}
	r.server.mu.Lock()
	r.ops = append(r.ops, RegionOp{Add: true, Rect: rect})
	r.server.mu.Unlock()
}

func (r *Region) Subtract(rect Rect) {
	if rect.Width <= 0 || rect.Height <= 0 {
		return
	}
	r.server.mu.Lock()
	r.ops = append(r.ops, RegionOp{Add: false, Rect: rect})
	r.server.mu.Unlock()
}

func (r *Region) Ops() []RegionOp {
	r.server.mu.Lock()
	defer r.server.mu.Unlock()
	out := make([]RegionOp, len(r.ops))
	copy(out, r.ops)
	return out
}
