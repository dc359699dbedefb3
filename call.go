package dbus

import (
	"errors"
)

// ErrSignature is returned by Store when the type of a reply argument
// doesn't match the destination.
var ErrSignature = errors.New("dbus: mismatched signature")

// Call represents a pending or completed method call, the unit the
// dispatcher (component G) correlates replies against by serial.
type Call struct {
	Destination string
	Path        ObjectPath
	Method      string
	Args        []interface{}

	// Done is closed-by-send exactly once, when Body/Err have been set by
	// the dispatcher; a buffered channel of size 1 is used by Object.Go so
	// the writer goroutine never blocks on a caller that doesn't read back.
	Done chan *Call

	// Body holds the reply body on success; Err holds the failure reason
	// (an *Error for a D-Bus ERROR reply, or a transport/encoding error)
	// otherwise. Exactly one of the two is meaningful once Done fires.
	Body []interface{}
	Err  error
}

// Store copies c.Body into retvalues the same way Decoder.Decode does,
// following Go's encoding/json convention of taking pointers to destinations.
func (c *Call) Store(retvalues ...interface{}) error {
	if c.Err != nil {
		return c.Err
	}
	return Store(c.Body, retvalues...)
}

// newCall allocates a Call with its Done channel sized so a single send
// never blocks the dispatcher's writer/reader goroutines.
func newCall(destination string, path ObjectPath, method string, args []interface{}) *Call {
	return &Call{
		Destination: destination,
		Path:        path,
		Method:      method,
		Args:        args,
		Done:        make(chan *Call, 1),
	}
}

func (c *Call) done() {
	c.Done <- c
}
