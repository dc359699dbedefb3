package dbus

import (
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const defaultSystemBusAddress = "unix:path=/var/run/dbus/system_bus_socket"

// ErrClosed is returned by operations attempted on a Conn after Close.
var ErrClosed = errors.New("dbus: connection closed")

var (
	systemBusLck  sync.Mutex
	systemBus     *Conn
	sessionBusLck sync.Mutex
	sessionBus    *Conn
)

// ConnOption configures a Conn at construction time: auth line length /
// rejection caps and the logging sink.
type ConnOption func(*Conn)

// WithAuthLineLimit overrides the 16 KiB default cap on a single SASL line.
func WithAuthLineLimit(n int) ConnOption {
	return func(conn *Conn) { conn.maxAuthLineLength = n }
}

// WithAuthRejectionLimit overrides the default cap of 42 authentication
// rejections before the handshake gives up.
func WithAuthRejectionLimit(n int) ConnOption {
	return func(conn *Conn) { conn.maxAuthRejections = n }
}

// WithLogger attaches a structured logging sink; Conn discards log lines
// when none is given.
func WithLogger(l Logger) ConnOption {
	return func(conn *Conn) { conn.logger = l }
}

// WithSignalHandler overrides the default NewSequentialSignalHandler used
// to fan signals out to subscriber channels.
func WithSignalHandler(h SignalHandler) ConnOption {
	return func(conn *Conn) { conn.handler = h }
}

// WithDisconnectHandler installs the callback invoked exactly once when the
// dispatcher tears the connection down, whether by explicit Close or a
// fatal protocol/transport error.
func WithDisconnectHandler(f func(error)) ConnOption {
	return func(conn *Conn) { conn.onDisconnect = f }
}

// Conn represents a connection to a message bus, or a direct peer-to-peer
// D-Bus connection. Multiple goroutines may invoke methods on a Conn
// simultaneously.
type Conn struct {
	transport

	// uuid is the server GUID returned in the auth OK line, not to be
	// confused with any particular bus's "machine ID".
	uuid string

	maxAuthLineLength int
	maxAuthRejections int

	logger       Logger
	onDisconnect func(error)

	names    []string
	namesLck sync.RWMutex

	lastSerial uint32 // atomic; incremented by nextSerial

	calls    map[uint32]*Call
	callsLck sync.Mutex

	handler SignalHandler
	exports *exportTable

	filtersLck sync.RWMutex
	filters    []func(*Message)

	eavesdroppedLck sync.Mutex
	eavesdropped    chan<- *Message

	out chan *outgoingMessage

	group      *errgroup.Group
	closeOnce  sync.Once
	closeErr   error
	closedChan chan struct{}
}

// outgoingMessage pairs an encoded message with the Call awaiting its
// reply, if any, so the writer goroutine can fail that Call on a write
// error without a second map lookup.
type outgoingMessage struct {
	msg  *Message
	call *Call // nil for signals, replies, and NoReplyExpected calls
}

// SessionBus returns a shared connection to the session bus, dialing and
// authenticating it on first use.
func SessionBus() (*Conn, error) {
	sessionBusLck.Lock()
	defer sessionBusLck.Unlock()
	if sessionBus != nil {
		return sessionBus, nil
	}
	conn, err := ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	sessionBus = conn
	return conn, nil
}

// SystemBus returns a shared connection to the system bus, dialing and
// authenticating it on first use.
func SystemBus() (*Conn, error) {
	systemBusLck.Lock()
	defer systemBusLck.Unlock()
	if systemBus != nil {
		return systemBus, nil
	}
	conn, err := ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	systemBus = conn
	return conn, nil
}

// ConnectSessionBus opens a new (unshared) connection to the session bus,
// honoring $DBUS_SESSION_BUS_ADDRESS.
func ConnectSessionBus(opts ...ConnOption) (*Conn, error) {
	address := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if address == "" {
		address = "autolaunch:"
	}
	return ConnectBus(address, opts...)
}

// ConnectSystemBus opens a new (unshared) connection to the system bus,
// honoring $DBUS_SYSTEM_BUS_ADDRESS.
func ConnectSystemBus(opts ...ConnOption) (*Conn, error) {
	address := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS")
	if address == "" {
		address = defaultSystemBusAddress
	}
	return ConnectBus(address, opts...)
}

// ConnectBus dials address, authenticates, and sends the initial Hello
// call required before any other bus traffic.
func ConnectBus(address string, opts ...ConnOption) (*Conn, error) {
	conn, err := Connect(address, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.hello(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Connect opens a peer-to-peer connection to address: it authenticates but
// does not call Hello, for direct (non-bus-daemon) D-Bus links.
func Connect(address string, opts ...ConnOption) (*Conn, error) {
	addrs, err := ParseAddresses(address)
	if err != nil {
		return nil, err
	}
	tr, err := dialAddresses(addrs)
	if err != nil {
		return nil, err
	}
	return newConn(tr, opts...)
}

// newConn wires up a freshly dialed transport: runs client auth, then
// starts the reader/writer goroutine pair.
func newConn(tr transport, opts ...ConnOption) (*Conn, error) {
	conn := newUnauthenticatedConn(tr, opts...)

	mechanisms := []Auth{AuthExternal(currentUsername()), AuthCookieSha1(), AuthAnonymous()}
	if err := conn.authenticate(mechanisms); err != nil {
		tr.Close()
		return nil, err
	}

	conn.start()
	return conn, nil
}

// newUnauthenticatedConn allocates a Conn around tr without running either
// side of the SASL handshake, for callers (server.go's Accept) that have
// already authenticated the transport themselves.
func newUnauthenticatedConn(tr transport, opts ...ConnOption) *Conn {
	conn := &Conn{
		transport:         tr,
		maxAuthLineLength: defaultMaxAuthLineLength,
		maxAuthRejections: defaultMaxAuthRejections,
		logger:            discardLogger,
		calls:             make(map[uint32]*Call),
		exports:           newExportTable(),
		out:               make(chan *outgoingMessage, 64),
		closedChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(conn)
	}
	if conn.handler == nil {
		conn.handler = NewSequentialSignalHandler()
	}
	return conn
}

// start launches the reader/writer goroutine pair under an errgroup, which
// gives Close a single point to wait for both. The pending-call map is
// shared with caller goroutines and guarded by callsLck.
func (conn *Conn) start() {
	group := new(errgroup.Group)
	conn.group = group
	group.Go(conn.readLoop)
	group.Go(conn.writeLoop)
}

func currentUsername() string {
	return os.Getenv("USER")
}

// hello sends the initial org.freedesktop.DBus.Hello call and records the
// connection's unique bus name.
func (conn *Conn) hello() error {
	var s string
	call := conn.BusObject().Call("org.freedesktop.DBus.Hello", 0)
	if err := call.Store(&s); err != nil {
		return err
	}
	conn.namesLck.Lock()
	conn.names = []string{s}
	conn.namesLck.Unlock()
	return conn.AddMatchSignal(NewMatchRule(
		WithMatchType("signal"),
		WithMatchSender("org.freedesktop.DBus"),
		WithMatchInterface("org.freedesktop.DBus"),
	))
}

// BusObject returns the org.freedesktop.DBus bus object.
func (conn *Conn) BusObject() *Object {
	return conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus")
}

// Object returns the remote object identified by dest and path.
func (conn *Conn) Object(dest string, path ObjectPath) *Object {
	return &Object{conn: conn, dest: dest, path: path}
}

// Names returns the list of names owned by this connection; the first
// element is always the unique name assigned by Hello (empty for a
// peer-to-peer connection that never called Hello).
func (conn *Conn) Names() []string {
	conn.namesLck.RLock()
	defer conn.namesLck.RUnlock()
	out := make([]string, len(conn.names))
	copy(out, conn.names)
	return out
}

// AddFilter registers f to observe every message the dispatcher decodes,
// in insertion order, before any reply/signal/method-call routing. f must
// not mutate msg.
func (conn *Conn) AddFilter(f func(msg *Message)) {
	conn.filtersLck.Lock()
	defer conn.filtersLck.Unlock()
	conn.filters = append(conn.filters, f)
}

// RemoveFilters clears every installed filter.
func (conn *Conn) RemoveFilters() {
	conn.filtersLck.Lock()
	defer conn.filtersLck.Unlock()
	conn.filters = nil
}

// Eavesdrop routes every message addressed to a destination this connection
// does not own to c instead of discarding it; signals among them are still
// delivered to the signal handler as well. Signals that no channel listens
// for are not sent to c. The caller must keep c drained; a full channel just
// drops the message. Pass nil to disable.
func (conn *Conn) Eavesdrop(c chan<- *Message) {
	conn.eavesdroppedLck.Lock()
	conn.eavesdropped = c
	conn.eavesdroppedLck.Unlock()
}

// Signal registers ch to receive every signal this connection is
// subscribed to, via the installed SignalHandler.
func (conn *Conn) Signal(ch chan<- *Signal) {
	conn.handler.AddSignal(ch)
}

// RemoveSignal unregisters ch from signal delivery.
func (conn *Conn) RemoveSignal(ch chan<- *Signal) {
	conn.handler.RemoveSignal(ch)
}

// AddMatchSignal asks the bus to route signals matching rule to this
// connection.
func (conn *Conn) AddMatchSignal(rule MatchRule) error {
	return conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule.String()).Err
}

// RemoveMatchSignal is the inverse of AddMatchSignal.
func (conn *Conn) RemoveMatchSignal(rule MatchRule) error {
	return conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule.String()).Err
}

// nextSerial returns the next message serial, skipping zero on overflow.
func (conn *Conn) nextSerial() uint32 {
	for {
		s := atomic.AddUint32(&conn.lastSerial, 1)
		if s != 0 {
			return s
		}
	}
}

// sendMethodCall builds and enqueues a method_call message for iface.member
// on path at dest, wiring up a Call the dispatcher will complete.
func (conn *Conn) sendMethodCall(dest string, path ObjectPath, iface, member string, flags Flags, ch chan *Call, args []interface{}) *Call {
	call := newCall(dest, path, iface+"."+member, args)
	if ch != nil {
		call.Done = ch
	}

	msg := &Message{
		Order:   binary.LittleEndian,
		Type:    TypeMethodCall,
		Flags:   flags & (FlagNoAutoStart | FlagNoReplyExpected),
		Serial:  conn.nextSerial(),
		Headers: make(map[HeaderField]Variant),
		Body:    args,
	}
	msg.Headers[FieldPath] = MakeVariant(path)
	msg.Headers[FieldMember] = MakeVariant(member)
	msg.Headers[FieldInterface] = MakeVariant(iface)
	if dest != "" {
		msg.Headers[FieldDestination] = MakeVariant(dest)
	}
	if len(args) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(args...))
	}

	noReply := flags&FlagNoReplyExpected != 0
	out := &outgoingMessage{msg: msg}
	if !noReply {
		conn.callsLck.Lock()
		conn.calls[msg.Serial] = call
		conn.callsLck.Unlock()
		out.call = call
	}

	select {
	case conn.out <- out:
	case <-conn.closedChan:
		call.Err = ErrClosed
		call.done()
		return call
	}

	if noReply {
		call.done()
	}
	return call
}

// sendReply sends a method_return to dest correlated with serial.
func (conn *Conn) sendReply(dest string, serial uint32, values ...interface{}) {
	msg := &Message{
		Order:   binary.LittleEndian,
		Type:    TypeMethodReply,
		Serial:  conn.nextSerial(),
		Headers: make(map[HeaderField]Variant),
		Body:    values,
	}
	if dest != "" {
		msg.Headers[FieldDestination] = MakeVariant(dest)
	}
	msg.Headers[FieldReplySerial] = MakeVariant(serial)
	if len(values) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(values...))
	}
	conn.enqueue(msg)
}

// sendError sends an error reply to dest correlated with serial.
func (conn *Conn) sendError(e *Error, dest string, serial uint32) {
	msg := &Message{
		Order:   binary.LittleEndian,
		Type:    TypeError,
		Serial:  conn.nextSerial(),
		Headers: make(map[HeaderField]Variant),
		Body:    e.Body,
	}
	if dest != "" {
		msg.Headers[FieldDestination] = MakeVariant(dest)
	}
	msg.Headers[FieldErrorName] = MakeVariant(e.Name)
	msg.Headers[FieldReplySerial] = MakeVariant(serial)
	if len(e.Body) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(e.Body...))
	}
	conn.enqueue(msg)
}

// Emit sends a signal message on the given path and interface.member name,
// e.g. "org.freedesktop.DBus.NameOwnerChanged".
func (conn *Conn) Emit(path ObjectPath, name string, values ...interface{}) error {
	if !path.IsValid() {
		return InvalidMessageError("invalid object path")
	}
	iface, member, err := splitMethodName(name)
	if err != nil {
		return err
	}
	msg := &Message{
		Order:   binary.LittleEndian,
		Type:    TypeSignal,
		Serial:  conn.nextSerial(),
		Headers: make(map[HeaderField]Variant),
		Body:    values,
	}
	msg.Headers[FieldPath] = MakeVariant(path)
	msg.Headers[FieldInterface] = MakeVariant(iface)
	msg.Headers[FieldMember] = MakeVariant(member)
	if len(values) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(values...))
	}
	conn.enqueue(msg)
	return nil
}

func (conn *Conn) enqueue(msg *Message) {
	select {
	case conn.out <- &outgoingMessage{msg: msg}:
	case <-conn.closedChan:
	}
}

// Close shuts the connection down: the transport is closed (so the reader
// fails its next read), the writer queue drains with ErrClosed, every
// pending reply fails with ErrClosed, and the installed SignalHandler is
// terminated. Safe to call more than once; the disconnect handler fires
// exactly once.
func (conn *Conn) Close() error {
	conn.closeOnce.Do(func() {
		close(conn.closedChan)
		conn.closeErr = conn.transport.Close()
		conn.failPendingCalls(ErrClosed)
		conn.handler.Terminate()
		if conn.group != nil {
			conn.group.Wait()
		}
		if conn.onDisconnect != nil {
			conn.onDisconnect(conn.closeErr)
		}
	})
	return conn.closeErr
}

func (conn *Conn) failPendingCalls(err error) {
	conn.callsLck.Lock()
	calls := conn.calls
	conn.calls = make(map[uint32]*Call)
	conn.callsLck.Unlock()
	for _, c := range calls {
		c.Err = err
		c.done()
	}
}

// shutdown is the fatal path: a protocol or transport error triggers the
// same teardown as Close, with cause recorded for the disconnect handler.
func (conn *Conn) shutdown(cause error) {
	conn.closeOnce.Do(func() {
		close(conn.closedChan)
		conn.closeErr = cause
		conn.transport.Close()
		conn.failPendingCalls(cause)
		conn.handler.Terminate()
		if conn.onDisconnect != nil {
			conn.onDisconnect(cause)
		}
	})
}

// writeLoop drains conn.out, encoding and writing each message in the
// order send calls enqueued them, so serials on the wire stay monotonic.
func (conn *Conn) writeLoop() error {
	for {
		select {
		case out, ok := <-conn.out:
			if !ok {
				return nil
			}
			err := conn.transport.SendMessage(out.msg)
			if err != nil {
				conn.logger.Log(LevelError, "dbus: write error: "+err.Error())
				if out.call != nil {
					conn.callsLck.Lock()
					delete(conn.calls, out.msg.Serial)
					conn.callsLck.Unlock()
					out.call.Err = err
					out.call.done()
				}
				go conn.shutdown(err)
				return err
			}
		case <-conn.closedChan:
			return nil
		}
	}
}

// readLoop repeatedly decodes one message and dispatches it to filters,
// pending-reply waiters, and signal subscribers in that order. A protocol
// error is fatal; any other read failure (EOF, transport closed) ends the
// loop via shutdown.
func (conn *Conn) readLoop() error {
	for {
		msg, err := conn.transport.ReadMessage()
		if err != nil {
			// Run shutdown on its own goroutine, as writeLoop does: Close
			// holds closeOnce while it waits for this loop to return.
			go conn.shutdown(err)
			return err
		}
		conn.dispatch(msg)
	}
}

func (conn *Conn) dispatch(msg *Message) {
	conn.filtersLck.RLock()
	for _, f := range conn.filters {
		f(msg)
	}
	conn.filtersLck.RUnlock()

	if !conn.ownsDestination(msg) {
		conn.eavesdroppedLck.Lock()
		c := conn.eavesdropped
		conn.eavesdroppedLck.Unlock()
		if c != nil {
			select {
			case c <- msg:
			default:
			}
		}
		if msg.Type != TypeSignal {
			return
		}
	}

	switch msg.Type {
	case TypeMethodReply, TypeError:
		conn.dispatchReply(msg)
	case TypeSignal:
		conn.dispatchSignal(msg)
	case TypeMethodCall:
		conn.exports.dispatch(conn, msg)
	}
}

func (conn *Conn) ownsDestination(msg *Message) bool {
	dest, _ := msg.Headers[FieldDestination].value.(string)
	if dest == "" {
		return true
	}
	conn.namesLck.RLock()
	defer conn.namesLck.RUnlock()
	if len(conn.names) == 0 {
		return true
	}
	for _, n := range conn.names {
		if n == dest {
			return true
		}
	}
	return false
}

func (conn *Conn) dispatchReply(msg *Message) {
	serial, ok := msg.Headers[FieldReplySerial].value.(uint32)
	if !ok {
		return
	}
	conn.callsLck.Lock()
	call, ok := conn.calls[serial]
	if ok {
		delete(conn.calls, serial)
	}
	conn.callsLck.Unlock()
	if !ok {
		return
	}
	if msg.Type == TypeError {
		name, _ := msg.Headers[FieldErrorName].value.(string)
		call.Err = NewError(name, msg.Body)
	} else {
		call.Body = msg.Body
	}
	call.done()
}

func (conn *Conn) dispatchSignal(msg *Message) {
	sender, _ := msg.Headers[FieldSender].value.(string)
	path, _ := msg.Headers[FieldPath].value.(ObjectPath)
	iface, _ := msg.Headers[FieldInterface].value.(string)
	member, _ := msg.Headers[FieldMember].value.(string)

	if iface == "org.freedesktop.DBus" && sender == "org.freedesktop.DBus" {
		if name, ok := firstString(msg.Body); ok {
			switch member {
			case "NameAcquired":
				conn.namesLck.Lock()
				known := false
				for _, n := range conn.names {
					known = known || n == name
				}
				if !known {
					conn.names = append(conn.names, name)
				}
				conn.namesLck.Unlock()
			case "NameLost":
				conn.forgetName(name)
			}
		}
	}

	signal := &Signal{
		Sender: sender,
		Path:   path,
		Name:   iface + "." + member,
		Body:   msg.Body,
	}
	conn.handler.DeliverSignal(iface, member, signal)
}

func firstString(body []interface{}) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	s, ok := body[0].(string)
	return s, ok
}

func (conn *Conn) forgetName(name string) {
	conn.namesLck.Lock()
	defer conn.namesLck.Unlock()
	for i, n := range conn.names {
		if n == name {
			conn.names = append(conn.names[:i], conn.names[i+1:]...)
			return
		}
	}
}
