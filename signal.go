package dbus

// Signal represents a D-Bus message of type Signal. Name is given in
// "interface.member" notation, e.g. org.freedesktop.DBus.NameLost.
type Signal struct {
	Sender string
	Path   ObjectPath
	Name   string
	Body   []interface{}
}

// Error represents a D-Bus message of type Error, and is returned by
// method calls that the peer answered with an error reply. Name is the
// D-Bus error name, e.g. org.freedesktop.DBus.Error.UnknownMethod.
type Error struct {
	Name string
	Body []interface{}
}

func (e Error) Error() string {
	if len(e.Body) >= 1 {
		s, ok := e.Body[0].(string)
		if ok {
			return s
		}
	}
	return e.Name
}

// NewError builds an *Error from a name and body, the form methods
// exported via the dispatch registry return to signal a D-Bus-level error
// to the caller.
func NewError(name string, body []interface{}) *Error {
	return &Error{Name: name, Body: body}
}

// SignalHandler dispatches signals delivered on a Conn to subscriber
// channels. NewSequentialSignalHandler is the default implementation,
// guaranteeing in-order delivery per channel; callers needing different
// ordering or backpressure semantics may supply their own.
type SignalHandler interface {
	// DeliverSignal hands a freshly decoded signal message to the handler.
	// intf and name are the signal's interface and member, split out of
	// signal.Name for convenience; signal carries the full picture.
	DeliverSignal(intf, name string, signal *Signal)
	// Terminate shuts the handler down, closing every channel it knows
	// about. Called once, when the Conn shuts down through Close or a
	// fatal read or write error.
	Terminate()
	// AddSignal registers ch to receive every signal subsequently
	// delivered, until RemoveSignal or Terminate.
	AddSignal(ch chan<- *Signal)
	// RemoveSignal unregisters ch; it does not close ch.
	RemoveSignal(ch chan<- *Signal)
}
