package comp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstarongithub/cwc/wayland"
)

func TestBindOutputSendsInitialState(t *testing.T) {
	conf := testConfig()
	conf.Outputs[0].X = 100
	conf.Outputs[0].Make = "testcorp"
	server := newTestServer(t, conf)
	h := connect(t, server)

	output := server.Outputs()[0]
	res := h.conn.NewResource(4)
	server.BindOutput(h.state, output, res)

	sent := res.Sent()
	require.Len(t, sent, 3, "geometry, mode, done")

	geometry, ok := sent[0].(wayland.OutputGeometry)
	require.True(t, ok)
	assert.Equal(t, int32(100), geometry.X)
	assert.Equal(t, "testcorp", geometry.Make)

	mode, ok := sent[1].(wayland.OutputMode)
	require.True(t, ok)
	assert.Equal(t, conf.Outputs[0].Width, mode.Width)
	assert.Equal(t, conf.Outputs[0].RefreshRate, mode.Refresh)
	assert.Equal(t, wayland.OutputModeCurrent|wayland.OutputModePreferred, mode.Flags)

	assert.Equal(t, "done", sent[2])
}

func TestBindingDestroyLeavesOutputAlone(t *testing.T) {
	server := newTestServer(t, testConfig())
	first := connect(t, server)
	second := connect(t, server)

	output := server.Outputs()[0]
	firstRes := first.conn.NewResource(4)
	server.BindOutput(first.state, output, firstRes)
	server.BindOutput(second.state, output, second.conn.NewResource(4))
	require.Equal(t, 2, output.BindingCount())

	before := output.Config()
	firstRes.Destroy()

	assert.Equal(t, 1, output.BindingCount())
	assert.True(t, output.Enabled())
	assert.Equal(t, before, output.Config(), "binding death must not mutate the shared record")

	// The whole client going away removes its binding the same way
	second.conn.Disconnect()
	assert.Equal(t, 0, output.BindingCount())
	assert.True(t, output.Enabled())
}

func TestOutputsSurviveClients(t *testing.T) {
	server := newTestServer(t, testConfig())
	require.Len(t, server.Outputs(), 1)

	h := connect(t, server)
	server.BindOutput(h.state, server.Outputs()[0], h.conn.NewResource(4))
	h.conn.Disconnect()

	assert.Len(t, server.Outputs(), 1, "outputs are process-wide, not per client")
}
