package comp

import (
	"container/list"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mstarongithub/cwc/config"
	"github.com/mstarongithub/cwc/wayland"
)

// Output is a process-wide monitor record, created once at startup and
// never destroyed while the server runs. Clients see it through per-client
// bindings; destroying a binding never touches the shared record.
type Output struct {
	server *Server
	conf   config.Output

	enabled  bool
	bindings list.List // *OutputBinding

	createTime time.Time
}

func newOutput(s *Server, conf config.Output) (*Output, error) {
	if err := validateOutputConfig(conf); err != nil {
		return nil, err
	}
	output := &Output{
		server:     s,
		conf:       conf,
		enabled:    true,
		createTime: time.Now(),
	}
	output.bindings.Init()
	return output, nil
}

func validateOutputConfig(conf config.Output) error {
	if conf.Name == "" {
		return fmt.Errorf("output without a name: %w", ErrInvalidParam)
	}
	if conf.Width <= 0 || conf.Height <= 0 {
		return fmt.Errorf("output %s mode %dx%d: %w", conf.Name, conf.Width, conf.Height, ErrInvalidParam)
	}
	if conf.PhysicalWidth < 0 || conf.PhysicalHeight < 0 {
		return fmt.Errorf("output %s physical size: %w", conf.Name, ErrInvalidParam)
	}
	if conf.RefreshRate <= 0 {
		return fmt.Errorf("output %s refresh %d: %w", conf.Name, conf.RefreshRate, ErrInvalidParam)
	}
	if conf.Transform < int32(wayland.TransformNormal) || conf.Transform > int32(wayland.TransformFlipped270) {
		return fmt.Errorf("output %s transform %d: %w", conf.Name, conf.Transform, ErrInvalidParam)
	}
	if conf.Subpixel < int32(wayland.SubpixelUnknown) || conf.Subpixel > int32(wayland.SubpixelVerticalBGR) {
		return fmt.Errorf("output %s subpixel %d: %w", conf.Name, conf.Subpixel, ErrInvalidParam)
	}
	return nil
}

func (o *Output) Name() string { return o.conf.Name }

func (o *Output) Config() config.Output { return o.conf }

func (o *Output) Enabled() bool {
	o.server.mu.Lock()
	defer o.server.mu.Unlock()
	return o.enabled
}

// BindingCount returns how many clients currently hold a handle to the output
func (o *Output) BindingCount() int {
	o.server.mu.Lock()
	defer o.server.mu.Unlock()
	return o.bindings.Len()
}

// OutputBinding is one client's handle to a shared output. It lives and
// dies with the client and only ever removes itself from the output's
// subscriber list.
type OutputBinding struct {
	output   *Output
	client   *ClientState
	resource wayland.Resource
	elem     *list.Element // position in output.bindings
}

// BindOutput creates cs's handle to output and sends the initial
// geometry/mode/done burst.
func (s *Server) BindOutput(cs *ClientState, output *Output, res wayland.Resource) *OutputBinding {
	binding := &OutputBinding{output: output, client: cs, resource: res}
	s.mu.Lock()
	binding.elem = output.bindings.PushBack(binding)
	s.mu.Unlock()

	res.SetUserData(binding)
	res.OnDestroy(binding.unbind)

	if sink, ok := res.(wayland.OutputSink); ok {
		conf := output.conf
		sink.Geometry(wayland.OutputGeometry{
			X:          conf.X,
			Y:          conf.Y,
			PhysWidth:  conf.PhysicalWidth,
			PhysHeight: conf.PhysicalHeight,
			Subpixel:   wayland.Subpixel(conf.Subpixel),
			Make:       conf.Make,
			Model:      conf.Model,
			Transform:  wayland.Transform(conf.Transform),
		})
		sink.Mode(wayland.OutputMode{
			Flags:   wayland.OutputModeCurrent | wayland.OutputModePreferred,
			Width:   conf.Width,
			Height:  conf.Height,
			Refresh: conf.RefreshRate,
		})
		sink.Done()
	}

	logrus.WithFields(logrus.Fields{
		"client": cs.id,
		"output": output.Name(),
	}).Debugln("wl_output bound")
	return binding
}

func (b *OutputBinding) Output() *Output { return b.output }

// unbind removes the handle from the output's subscriber bookkeeping. The
// shared output record itself is untouched.
func (b *OutputBinding) unbind() {
	s := b.output.server
	s.mu.Lock()
	if b.elem != nil {
		b.output.bindings.Remove(b.elem)
		b.elem = nil
	}
	s.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"client": b.client.id,
		"output": b.output.Name(),
	}).Debugln("wl_output binding released")
}
