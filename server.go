package dbus

import (
	"net"
)

// ServerOption configures a Server at construction time, mirroring
// ConnOption's functional-options idiom for the listener side.
type ServerOption func(*Server)

// WithServerMechanisms sets the ServerAuth mechanisms offered to
// connecting clients, in preference order. The default is
// EXTERNAL, then DBUS_COOKIE_SHA1.
func WithServerMechanisms(mechanisms ...ServerAuth) ServerOption {
	return func(s *Server) { s.mechanisms = mechanisms }
}

// WithServerLogger attaches a structured logging sink to the server and
// every Conn it accepts.
func WithServerLogger(l Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithServerConnOptions passes opts through to every accepted Conn.
func WithServerConnOptions(opts ...ConnOption) ServerOption {
	return func(s *Server) { s.connOpts = opts }
}

// Server listens for incoming D-Bus connections on a unix-domain address
// and authenticates them with the server-side SASL state machine, the
// accepting counterpart of Connect.
type Server struct {
	listener *net.UnixListener
	guid     string

	mechanisms []ServerAuth
	logger     Logger
	connOpts   []ConnOption
}

// NewServer listens on address, which must be a "unix:path=" or
// "unix:abstract=" address (the only transport this package accepts
// incoming connections on). guid is the server GUID sent back in the auth
// OK line and returned by the Peer interface's GetMachineId.
func NewServer(address, guid string, opts ...ServerOption) (*Server, error) {
	addrs, err := ParseAddresses(address)
	if err != nil {
		return nil, err
	}
	var addr Address
	found := false
	for _, a := range addrs {
		if a.Transport == "unix" {
			addr = a
			found = true
			break
		}
	}
	if !found {
		return nil, AddressError("server: no supported (unix) transport in address")
	}

	var name string
	if path, ok := addr.Param("path"); ok {
		name = path
	} else if abstract, ok := addr.Param("abstract"); ok {
		name = "@" + abstract
	} else {
		return nil, AddressError("unix: address is missing a path or abstract key")
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: name, Net: "unix"})
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		guid:     guid,
		mechanisms: []ServerAuth{
			ServerAuthExternal(nil),
			ServerAuthCookieSha1(),
		},
		logger: discardLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GUID returns the server's GUID, as sent in each accepted client's OK line.
func (s *Server) GUID() string { return s.guid }

// Close stops accepting new connections. Connections already accepted are
// unaffected.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Accept blocks until a client connects, authenticates, and returns a
// ready-to-use Conn, or an error if the accept or handshake failed.
func (s *Server) Accept() (*Conn, error) {
	uc, err := s.listener.AcceptUnix()
	if err != nil {
		return nil, err
	}

	t := &unixTransport{conn: uc}
	t.peerUid, t.hasPeerUid = peerCredentials(uc)

	conn := newUnauthenticatedConn(t, append([]ConnOption{WithLogger(s.logger)}, s.connOpts...)...)
	result, err := authenticateServer(t, s.mechanisms, s.guid, conn.maxAuthLineLength, conn.maxAuthRejections, s.logger)
	if err != nil {
		uc.Close()
		return nil, err
	}
	if result.unixFDs {
		t.EnableUnixFDs()
	}

	conn.uuid = s.guid
	conn.start()
	return conn, nil
}

// Handler reacts to a freshly accepted connection, typically by exporting
// objects on it before any method calls arrive.
type Handler interface {
	GotConnection(*Server, *Conn)
}

// Serve runs a server loop accepting and authenticating new connections,
// calling h.GotConnection for each in its own goroutine. It returns when
// Accept fails (e.g. after Close).
func Serve(s *Server, h Handler) error {
	for {
		conn, err := s.Accept()
		if err != nil {
			return err
		}
		go h.GotConnection(s, conn)
	}
}
