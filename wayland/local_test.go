package wayland

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroyRunsHandlersExactlyOnce(t *testing.T) {
	client := NewLocalClient()
	res := client.NewResource(1)

	calls := 0
	res.OnDestroy(func() { calls++ })

	res.Destroy()
	res.Destroy()
	res.Destroy()
	assert.Equal(t, 1, calls)
	assert.True(t, res.Destroyed())
}

func TestDestroyHandlerOrder(t *testing.T) {
	client := NewLocalClient()
	res := client.NewResource(1)

	order := []int{}
	res.OnDestroy(func() { order = append(order, 1) })
	res.OnDestroy(func() { order = append(order, 2) })
	res.Destroy()

	// Reverse registration order, like teardown stacks everywhere
	assert.Equal(t, []int{2, 1}, order)
}

func TestOnDestroyAfterDeathIsIgnored(t *testing.T) {
	client := NewLocalClient()
	res := client.NewResource(1)
	res.Destroy()

	called := false
	res.OnDestroy(func() { called = true })
	res.Destroy()
	assert.False(t, called)
}

func TestDisconnectDestroysNewestFirst(t *testing.T) {
	client := NewLocalClient()

	destroyed := []uint32{}
	for i := 0; i < 3; i++ {
		res := client.NewResource(1)
		id := res.ID()
		res.OnDestroy(func() { destroyed = append(destroyed, id) })
	}

	disconnectRan := false
	client.OnDisconnect(func() {
		disconnectRan = true
		// Every resource is gone before the disconnect callbacks run
		assert.Len(t, destroyed, 3)
	})

	client.Disconnect()
	require.True(t, disconnectRan)
	assert.Equal(t, []uint32{3, 2, 1}, destroyed)

	// A second disconnect does nothing
	client.Disconnect()
	assert.Len(t, destroyed, 3)
}

func TestExplicitDestroyBeforeDisconnect(t *testing.T) {
	client := NewLocalClient()
	res := client.NewResource(1)

	calls := 0
	res.OnDestroy(func() { calls++ })

	res.Destroy()
	client.Disconnect()
	assert.Equal(t, 1, calls, "release then disconnect must not double-fire")
}

func TestUserData(t *testing.T) {
	client := NewLocalClient()
	res := client.NewResource(7)

	assert.Nil(t, res.UserData())
	payload := &struct{ name string }{name: "pool"}
	res.SetUserData(payload)
	assert.Same(t, payload, res.UserData())
	assert.Equal(t, uint32(7), res.Version())
}

func TestResourceIDsAscend(t *testing.T) {
	client := NewLocalClient()
	a := client.NewResource(1)
	b := client.NewResource(1)
	assert.Equal(t, a.ID()+1, b.ID())
}
