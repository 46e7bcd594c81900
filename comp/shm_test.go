package comp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mstarongithub/cwc/wayland"
)

func fdIsClosed(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == unix.EBADF
}

func TestCreatePoolRejectsBadSizes(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)

	for _, size := range []int32{0, -1, -4096} {
		fd := newShmFd(t, 4096)
		_, err := h.shm.CreatePool(h.conn.NewResource(1), fd, size)
		require.ErrorIs(t, err, ErrInvalidParam, "size %d", size)
		assert.True(t, fdIsClosed(fd), "fd must be closed on the size %d failure path", size)
	}

	// One byte over the static ceiling
	fd := newShmFd(t, 4096)
	_, err := h.shm.CreatePool(h.conn.NewResource(1), fd, int32(testConfig().Limits.MaxPoolSize)+1)
	require.ErrorIs(t, err, ErrInvalidParam)
	assert.True(t, fdIsClosed(fd))

	assert.Equal(t, uint32(0), h.state.PoolCount())
}

func TestCreatePoolClosesFdOnSuccess(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)

	fd := newShmFd(t, 4096)
	pool, err := h.shm.CreatePool(h.conn.NewResource(1), fd, 4096)
	require.NoError(t, err)
	assert.True(t, fdIsClosed(fd), "the mapping keeps the pages alive, the fd must not leak")
	assert.Equal(t, int32(4096), pool.Size())
	assert.NotNil(t, pool.data)
}

func TestCreatePoolMapFailure(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)

	// A descriptor that cannot be mapped shared read/write
	fd, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	require.NoError(t, err)
	_, err = h.shm.CreatePool(h.conn.NewResource(1), fd, 4096)
	require.ErrorIs(t, err, ErrResourceCreate)
	assert.True(t, fdIsClosed(fd))
	// The failed pool must not stay counted against the quota
	assert.Equal(t, uint32(0), h.state.PoolCount())
}

func TestPoolQuota(t *testing.T) {
	server := newTestServer(t, testConfig()) // 2 pools per client
	h := connect(t, server)

	h.newPool(t, 4096)
	h.newPool(t, 4096)
	fd := newShmFd(t, 4096)
	_, err := h.shm.CreatePool(h.conn.NewResource(1), fd, 4096)
	require.ErrorIs(t, err, ErrResourceLimit)
	assert.True(t, fdIsClosed(fd))
	assert.Equal(t, uint32(2), h.state.PoolCount())

	// Another client's quota is untouched
	other := connect(t, server)
	other.newPool(t, 4096)
}

func TestCreateBufferExactFit(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 4096)

	// 0 + 32*128 = 4096 <= 4096
	buffer, err := pool.CreateBuffer(h.conn.NewResource(1), 0, 32, 32, 128, wayland.FormatARGB8888)
	require.NoError(t, err)
	assert.Len(t, buffer.Bytes(), 4096)
	assert.Equal(t, 1, pool.refCount)

	// 1 + 32*128 = 4097 > 4096
	_, err = pool.CreateBuffer(h.conn.NewResource(1), 1, 32, 32, 128, wayland.FormatARGB8888)
	require.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, 1, pool.refCount, "failed create must not touch the refcount")
	assert.Equal(t, 1, pool.buffers.Len())
}

func TestCreateBufferValidationOrder(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 4096)

	cases := []struct {
		name                          string
		offset, width, height, stride int32
		format                        wayland.Format
		want                          error
	}{
		{"negative offset", -1, 32, 32, 128, wayland.FormatARGB8888, ErrInvalidParam},
		{"zero width", 0, 0, 32, 128, wayland.FormatARGB8888, ErrInvalidParam},
		{"zero height", 0, 32, 0, 128, wayland.FormatARGB8888, ErrInvalidParam},
		{"negative stride", 0, 32, 32, -128, wayland.FormatARGB8888, ErrInvalidParam},
		{"unadvertised format", 0, 32, 32, 128, wayland.FormatRGB565, ErrUnsupportedFormat},
		// Bad geometry on a bad format still reports the geometry first
		{"params before format", -1, 32, 32, 128, wayland.FormatRGB565, ErrInvalidParam},
		{"row span overflow", 0, 32, math.MaxInt32, math.MaxInt32, wayland.FormatARGB8888, ErrOverflow},
		{"overflow before bounds", 4096, 32, math.MaxInt32, 2, wayland.FormatARGB8888, ErrOverflow},
		{"out of bounds", 0, 64, 64, 256, wayland.FormatARGB8888, ErrOutOfBounds},
		{"offset out of bounds", 4096, 1, 1, 4, wayland.FormatARGB8888, ErrOutOfBounds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pool.CreateBuffer(h.conn.NewResource(1), tc.offset, tc.width, tc.height, tc.stride, tc.format)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, pool.refCount)
	assert.Equal(t, 0, pool.buffers.Len())
}

func TestBufferViewsArePoolMemory(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 8192)

	front := h.newBuffer(t, pool, 0, 32, 32, 128)
	back := h.newBuffer(t, pool, 4096, 32, 32, 128)

	front.Bytes()[0] = 0xAB
	back.Bytes()[0] = 0xCD
	assert.Equal(t, byte(0xAB), pool.data[0])
	assert.Equal(t, byte(0xCD), pool.data[4096])
	assert.Equal(t, 2, pool.refCount)
}

func TestPoolReleaseWithLiveBuffersDefersUnmap(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 8192)
	first := h.newBuffer(t, pool, 0, 32, 32, 128)
	second := h.newBuffer(t, pool, 4096, 32, 32, 128)

	pool.resource.Destroy()
	assert.True(t, pool.released)
	assert.NotNil(t, pool.data, "unmap must wait for the buffers")
	// The quota slot frees at release even though the mapping lingers
	assert.Equal(t, uint32(0), h.state.PoolCount())

	first.resource.Destroy()
	assert.NotNil(t, pool.data)

	second.resource.Destroy()
	assert.Nil(t, pool.data, "last buffer drops the mapping")

	// Replaying the destroy must not unmap (or count) twice
	second.resource.Destroy()
	assert.Equal(t, 0, pool.refCount)
}

func TestPoolReleaseWithoutBuffersUnmapsNow(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 4096)

	pool.resource.Destroy()
	assert.Nil(t, pool.data)
}

func TestBufferOutlivesPoolRelease(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 4096)
	buffer := h.newBuffer(t, pool, 0, 32, 32, 128)

	pool.resource.Destroy()
	// The view stays readable until the buffer itself dies
	require.NotNil(t, buffer.Bytes())
	assert.Len(t, buffer.Bytes(), 4096)

	buffer.resource.Destroy()
	assert.Nil(t, buffer.Bytes())
}

func TestCreateBufferOnReleasedPool(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 4096)
	pool.resource.Destroy()

	_, err := pool.CreateBuffer(h.conn.NewResource(1), 0, 32, 32, 128, wayland.FormatARGB8888)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestPoolResizeGrowsOnly(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)
	pool := h.newPool(t, 4096)
	buffer := h.newBuffer(t, pool, 0, 32, 32, 128)

	require.ErrorIs(t, pool.Resize(2048), ErrInvalidParam)
	require.ErrorIs(t, pool.Resize(int32(testConfig().Limits.MaxPoolSize)+1), ErrInvalidParam)
	require.NoError(t, pool.Resize(4096), "same size is a no-op")

	require.NoError(t, pool.Resize(8192))
	assert.Equal(t, int32(8192), pool.Size())
	// The old view stays inside the grown mapping
	assert.Len(t, buffer.Bytes(), 4096)

	// The grown tail is usable for new buffers
	h2 := h.newBuffer(t, pool, 4096, 32, 32, 128)
	assert.Len(t, h2.Bytes(), 4096)
}

func TestResizeReleasedPool(t *testing.T) {
	server := newTestServer(t, testConfig())
	h := connect(t, server)

	// Fully torn down: the state error must win even for sizes the parameter
	// checks would also reject
	pool := h.newPool(t, 4096)
	pool.resource.Destroy()
	require.ErrorIs(t, pool.Resize(2048), ErrInvalidState)
	require.ErrorIs(t, pool.Resize(8192), ErrInvalidState)

	// Released but still mapped through a live buffer: same answer
	deferred := h.newPool(t, 4096)
	buffer := h.newBuffer(t, deferred, 0, 32, 32, 128)
	deferred.resource.Destroy()
	require.NotNil(t, buffer.Bytes())
	require.ErrorIs(t, deferred.Resize(8192), ErrInvalidState)
}
