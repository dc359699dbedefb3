package dbus

import (
	"errors"
	"strings"
)

// BusObject is the set of method-calling operations available on an Object;
// Conn.Object returns one, and code that only needs to invoke methods can
// depend on this narrower interface instead of *Object.
type BusObject interface {
	Call(method string, flags Flags, args ...interface{}) *Call
	Go(method string, flags Flags, ch chan *Call, args ...interface{}) *Call
	GetProperty(p string) (Variant, error)
	Destination() string
	Path() ObjectPath
}

// Object represents a remote object on which methods can be invoked, the
// combination of a destination bus name and an object path.
type Object struct {
	conn *Conn
	dest string
	path ObjectPath
}

var _ BusObject = (*Object)(nil)

// Destination returns the destination that calls on o are sent to.
func (o *Object) Destination() string { return o.dest }

// Path returns the path that calls on o are sent to.
func (o *Object) Path() ObjectPath { return o.path }

// Call calls method synchronously and returns its Call once Done has
// fired. The method parameter must be "interface.member", e.g.
// "org.freedesktop.DBus.Peer.Ping".
func (o *Object) Call(method string, flags Flags, args ...interface{}) *Call {
	return <-o.Go(method, flags, make(chan *Call, 1), args...).Done
}

// Go calls method asynchronously: the dispatcher sends the completed Call
// on ch (or the Call's own Done channel if ch is nil) once a reply or
// error arrives. If flags includes NoReplyExpected, Go fires the request
// and immediately completes Done without waiting on any reply.
func (o *Object) Go(method string, flags Flags, ch chan *Call, args ...interface{}) *Call {
	iface, member, err := splitMethodName(method)
	if err != nil {
		call := newCall(o.dest, o.path, method, args)
		call.Err = err
		call.done()
		return call
	}
	return o.conn.sendMethodCall(o.dest, o.path, iface, member, flags, ch, args)
}

// AddMatchSignal subscribes ch (registered separately via Conn.Signal) to
// signals matching iface/member scoped to this object's path, a convenience
// wrapper around MatchRule + AddMatch. The sender is not constrained unless
// one of options sets it.
func (o *Object) AddMatchSignal(iface, member string, options ...MatchOption) error {
	base := []MatchOption{
		WithMatchType("signal"),
		WithMatchInterface(iface),
		WithMatchMember(member),
		WithMatchObjectPath(o.path),
	}
	return o.conn.AddMatchSignal(NewMatchRule(append(base, options...)...))
}

// RemoveMatchSignal is the inverse of AddMatchSignal.
func (o *Object) RemoveMatchSignal(iface, member string, options ...MatchOption) error {
	base := []MatchOption{
		WithMatchType("signal"),
		WithMatchInterface(iface),
		WithMatchMember(member),
		WithMatchObjectPath(o.path),
	}
	return o.conn.RemoveMatchSignal(NewMatchRule(append(base, options...)...))
}

// GetProperty calls org.freedesktop.DBus.Properties.Get for "interface.Name"
// formatted property, the de-facto standard property accessor.
func (o *Object) GetProperty(p string) (Variant, error) {
	iface, name, err := splitMethodName(p)
	if err != nil {
		return Variant{}, err
	}
	call := o.Call("org.freedesktop.DBus.Properties.Get", 0, iface, name)
	if call.Err != nil {
		return Variant{}, call.Err
	}
	variant, ok := call.Body[0].(Variant)
	if !ok {
		return Variant{}, errors.New("dbus: invalid property reply")
	}
	return variant, nil
}

// SetProperty calls org.freedesktop.DBus.Properties.Set for "interface.Name".
func (o *Object) SetProperty(p string, v interface{}) error {
	iface, name, err := splitMethodName(p)
	if err != nil {
		return err
	}
	call := o.Call("org.freedesktop.DBus.Properties.Set", 0, iface, name, MakeVariant(v))
	return call.Err
}

func splitMethodName(method string) (iface, member string, err error) {
	i := strings.LastIndex(method, ".")
	if i == -1 {
		return "", "", errors.New("dbus: method name without an interface: " + method)
	}
	return method[:i], method[i+1:], nil
}
