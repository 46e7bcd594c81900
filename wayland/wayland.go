// Package wayland holds the contract between the compositor core and the
// transport layer that speaks the actual wire protocol. The core never sees
// sockets or marshalling; it only sees clients and the protocol objects
// ("resources") the transport has already decoded for it.
package wayland

// Format is a wl_shm pixel format code. The two zero-ish values are special
// cased by the protocol, everything else is a fourcc code.
type Format uint32

const (
	FormatARGB8888 Format = 0
	FormatXRGB8888 Format = 1
	FormatRGB565   Format = 0x36314752 // 'RG16'
	FormatXBGR8888 Format = 0x34324258 // 'XB24'
	FormatABGR8888 Format = 0x34324241 // 'AB24'
)

func (f Format) String() string {
	switch f {
	case FormatARGB8888:
		return "ARGB8888"
	case FormatXRGB8888:
		return "XRGB8888"
	case FormatRGB565:
		return "RGB565"
	case FormatXBGR8888:
		return "XBGR8888"
	case FormatABGR8888:
		return "ABGR8888"
	}
	return "unknown"
}

// Transform is a wl_output transform value.
type Transform int32

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// Subpixel is a wl_output subpixel layout value.
type Subpixel int32

const (
	SubpixelUnknown Subpixel = iota
	SubpixelNone
	SubpixelHorizontalRGB
	SubpixelHorizontalBGR
	SubpixelVerticalRGB
	SubpixelVerticalBGR
)

// Client is one connected client process as seen by the transport.
type Client interface {
	// OnDisconnect registers fn to run when the connection goes away.
	// The transport guarantees every resource owned by the client has
	// been destroyed before any disconnect callback fires.
	OnDisconnect(fn func())
}

// Resource is one protocol object bound on a client connection. The core
// attaches its own state via the user data slot and registers destructors
// through OnDestroy.
type Resource interface {
	ID() uint32
	Version() uint32
	Client() Client

	// OnDestroy registers fn to run when the object is destroyed, either by
	// an explicit release request or by the client disconnecting, whichever
	// comes first. Each registered fn runs exactly once.
	OnDestroy(fn func())

	// Destroy tears the object down now. Safe to call more than once, only
	// the first call does anything.
	Destroy()

	SetUserData(v any)
	UserData() any
}

// OutputGeometry mirrors the wl_output.geometry event arguments.
type OutputGeometry struct {
	X, Y           int32
	PhysWidth      int32
	PhysHeight     int32
	Subpixel       Subpixel
	Make, Model    string
	Transform      Transform
}

// OutputMode mirrors the wl_output.mode event arguments. Refresh is in mHz.
type OutputMode struct {
	Flags   uint32
	Width   int32
	Height  int32
	Refresh int32
}

const (
	OutputModeCurrent   uint32 = 0x1
	OutputModePreferred uint32 = 0x2
)

// OutputSink is implemented by output resources that want the initial
// geometry/mode/done burst. Transports that don't care simply don't
// implement it.
type OutputSink interface {
	Geometry(g OutputGeometry)
	Mode(m OutputMode)
	Done()
}

// ShmSink receives the supported-format advertisement on wl_shm bind.
type ShmSink interface {
	Format(f Format)
}

// BufferSink receives the release notification once the server is done
// reading a committed buffer.
type BufferSink interface {
	Release()
}
