package dbus

// AuthAnonymous returns an Auth that authenticates as an anonymous user
func AuthAnonymous() Auth {
	return authAnonymous{}
}

// authAnonymous implements the ANONYMOUS authentication mechanism.
type authAnonymous struct {
}

func (a authAnonymous) FirstData() ([]byte, []byte, AuthStatus) {
	return []byte("ANONYMOUS"), []byte(""), AuthOk
}

func (a authAnonymous) HandleData(b []byte) ([]byte, AuthStatus) {
	return nil, AuthError
}

// ServerAuthAnonymous returns a ServerAuth that accepts the ANONYMOUS
// mechanism unconditionally.
func ServerAuthAnonymous() ServerAuth {
	return serverAuthAnonymous{}
}

type serverAuthAnonymous struct{}

func (serverAuthAnonymous) Name() string { return "ANONYMOUS" }

func (serverAuthAnonymous) Supported(tr transport) bool { return true }

func (serverAuthAnonymous) HandleAuth(b []byte, tr transport) ([]byte, ServerAuthStatus) {
	return nil, ServerAuthOk
}

func (serverAuthAnonymous) HandleData(b []byte) ([]byte, ServerAuthStatus) {
	return nil, ServerAuthRejected
}
