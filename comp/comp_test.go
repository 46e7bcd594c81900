package comp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mstarongithub/cwc/config"
	"github.com/mstarongithub/cwc/wayland"
)

// testConfig shrinks the ceilings so limit tests stay cheap
func testConfig() config.Config {
	conf := config.Default()
	conf.Limits.MaxClients = 3
	conf.Limits.MaxSurfacesPerClient = 4
	conf.Limits.MaxPoolsPerClient = 2
	conf.Limits.MaxPoolSize = 1 << 20
	return conf
}

func newTestServer(t *testing.T, conf config.Config) *Server {
	t.Helper()
	server, err := New(conf, nil)
	require.NoError(t, err)
	t.Cleanup(server.Shutdown)
	return server
}

// newShmFd returns a memfd of the given size, the same kind of descriptor a
// real client would send for wl_shm.create_pool.
func newShmFd(t *testing.T, size int64) int {
	t.Helper()
	fd, err := unix.MemfdCreate("cwc-test", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	require.NoError(t, unix.Ftruncate(fd, size))
	return fd
}

// harness is one connected test client with its globals bound
type harness struct {
	server     *Server
	conn       *wayland.LocalClient
	state      *ClientState
	compositor *Compositor
	shm        *Shm
}

func connect(t *testing.T, server *Server) *harness {
	t.Helper()
	conn := wayland.NewLocalClient()
	state, err := server.AdmitClient(conn)
	require.NoError(t, err)
	return &harness{
		server:     server,
		conn:       conn,
		state:      state,
		compositor: server.BindCompositor(state, conn.NewResource(6)),
		shm:        server.BindShm(state, conn.NewResource(1)),
	}
}

func (h *harness) newPool(t *testing.T, size int32) *Pool {
	t.Helper()
	pool, err := h.shm.CreatePool(h.conn.NewResource(1), newShmFd(t, int64(size)), size)
	require.NoError(t, err)
	return pool
}

func (h *harness) newBuffer(t *testing.T, pool *Pool, offset, width, height, stride int32) *Buffer {
	t.Helper()
	buffer, err := pool.CreateBuffer(h.conn.NewResource(1), offset, width, height, stride, wayland.FormatARGB8888)
	require.NoError(t, err)
	return buffer
}

func (h *harness) newSurface(t *testing.T) *Surface {
	t.Helper()
	surface, err := h.compositor.CreateSurface(h.conn.NewResource(6))
	require.NoError(t, err)
	return surface
}
