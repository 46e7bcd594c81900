package comp

import "errors"

// Error taxonomy for rejected client requests. Every rejection leaves the
// object graph exactly as it was; wrap these with fmt.Errorf("...: %w") for
// detail and classify with errors.Is. Corrupted internal invariants are not
// errors, they go through logrus.Fatalln because continuing would mean
// operating on a broken graph.
var (
	// Malformed or out-of-range arguments. The client's fault, never retried.
	ErrInvalidParam = errors.New("invalid parameter")
	// A per-client or global quota is exhausted.
	ErrResourceLimit = errors.New("resource limit reached")
	// The requested pixel format was not advertised at startup.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	// A size computation does not fit the protocol's integer range.
	ErrOverflow = errors.New("size computation overflows")
	// A buffer view escapes its pool's mapping.
	ErrOutOfBounds = errors.New("view escapes pool mapping")
	// The OS refused to create a mapping or descriptor.
	ErrResourceCreate = errors.New("resource creation failed")
	// The object is not in a state where the request makes sense.
	ErrInvalidState = errors.New("invalid object state")
)
