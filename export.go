package dbus

import (
	"reflect"
	"sync"
)

var errorType = reflect.TypeOf(&Error{})

var errmsgUnknownMethod = func(iface, member string) *Error {
	return NewError("org.freedesktop.DBus.Error.UnknownMethod",
		[]interface{}{"Unknown method " + member + " or interface " + iface})
}

var errmsgInvalidArgs = NewError("org.freedesktop.DBus.Error.InvalidArgs",
	[]interface{}{"invalid type or number of arguments"})

type exportKey struct {
	path  ObjectPath
	iface string
}

// exportTable is the default export registry: it binds an exported Go
// value's methods to a path+interface pair and, on a method_call, invokes
// the matching method by name, replying with
// org.freedesktop.DBus.Error.UnknownMethod when nothing claims it.
//
// An exported method must have *Error as its last return value; if it is
// non-nil the dispatcher sends it back as the reply's error instead of a
// normal method reply.
type exportTable struct {
	mu      sync.RWMutex
	objects map[exportKey]reflect.Value
}

func newExportTable() *exportTable {
	return &exportTable{objects: make(map[exportKey]reflect.Value)}
}

// export binds v's methods at path+iface, or unbinds them if v is nil.
func (t *exportTable) export(path ObjectPath, iface string, v interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := exportKey{path, iface}
	if v == nil {
		delete(t.objects, key)
		return
	}
	t.objects[key] = reflect.ValueOf(v)
}

func (t *exportTable) lookup(path ObjectPath, iface string) (reflect.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.objects[exportKey{path, iface}]
	return v, ok
}

// dispatch handles one decoded method_call message.
func (t *exportTable) dispatch(conn *Conn, msg *Message) {
	path, _ := msg.Headers[FieldPath].value.(ObjectPath)
	member, _ := msg.Headers[FieldMember].value.(string)
	iface, _ := msg.Headers[FieldInterface].value.(string)
	sender, _ := msg.Headers[FieldSender].value.(string)

	if iface == "org.freedesktop.DBus.Peer" {
		if t.dispatchPeer(conn, msg, member, sender) {
			return
		}
	}

	rv, ok := t.lookup(path, iface)
	if !ok {
		conn.sendError(errmsgUnknownMethod(iface, member), sender, msg.Serial)
		return
	}
	m := rv.MethodByName(member)
	if !m.IsValid() {
		conn.sendError(errmsgUnknownMethod(iface, member), sender, msg.Serial)
		return
	}
	mt := m.Type()
	if mt.NumOut() == 0 || mt.Out(mt.NumOut()-1) != errorType {
		conn.sendError(errmsgUnknownMethod(iface, member), sender, msg.Serial)
		return
	}
	if mt.NumIn() != len(msg.Body) {
		conn.sendError(errmsgInvalidArgs, sender, msg.Serial)
		return
	}
	args := make([]reflect.Value, len(msg.Body))
	for i, v := range msg.Body {
		arg := reflect.ValueOf(v)
		if !arg.IsValid() || !arg.Type().AssignableTo(mt.In(i)) {
			conn.sendError(errmsgInvalidArgs, sender, msg.Serial)
			return
		}
		args[i] = arg
	}

	ret := callExported(m, args)
	if errv, _ := ret[len(ret)-1].Interface().(*Error); errv != nil {
		conn.sendError(errv, sender, msg.Serial)
		return
	}
	if msg.Flags&FlagNoReplyExpected != 0 {
		return
	}
	out := make([]interface{}, len(ret)-1)
	for i, v := range ret[:len(ret)-1] {
		out[i] = v.Interface()
	}
	conn.sendReply(sender, msg.Serial, out...)
}

// callExported invokes m, turning a panic into an org.freedesktop.DBus.Error.Failed
// return instead of taking the whole connection's reader goroutine down with it.
func callExported(m reflect.Value, args []reflect.Value) (ret []reflect.Value) {
	defer func() {
		if r := recover(); r != nil {
			mt := m.Type()
			ret = make([]reflect.Value, mt.NumOut())
			for i := 0; i < mt.NumOut()-1; i++ {
				ret[i] = reflect.Zero(mt.Out(i))
			}
			failed := NewError("org.freedesktop.DBus.Error.Failed", []interface{}{"method panicked"})
			ret[mt.NumOut()-1] = reflect.ValueOf(failed)
		}
	}()
	return m.Call(args)
}

// dispatchPeer answers the standard org.freedesktop.DBus.Peer interface
// without requiring callers to export it explicitly.
func (t *exportTable) dispatchPeer(conn *Conn, msg *Message, member, sender string) bool {
	switch member {
	case "Ping":
		conn.sendReply(sender, msg.Serial)
		return true
	case "GetMachineId":
		conn.sendReply(sender, msg.Serial, conn.uuid)
		return true
	}
	return false
}

// Export registers v's methods to be called when a method_call arrives
// addressed to path+iface. Passing a nil v unexports whatever was
// registered there. Export panics if path is not a valid object path.
func (conn *Conn) Export(v interface{}, path ObjectPath, iface string) {
	if !path.IsValid() {
		panic("(*dbus.Conn).Export: invalid path name")
	}
	conn.exports.export(path, iface, v)
}
