package dbus

// RequestNameFlags are the flags accepted by RequestName.
type RequestNameFlags uint32

const (
	FlagAllowReplacement RequestNameFlags = 1 << iota
	FlagReplaceExisting
	FlagDoNotQueue
)

// RequestNameReply is the result code RequestName returns.
type RequestNameReply uint32

const (
	RequestNameReplyPrimaryOwner RequestNameReply = 1 + iota
	RequestNameReplyInQueue
	RequestNameReplyExists
	RequestNameReplyAlreadyOwner
)

// ReleaseNameReply is the result code ReleaseName returns.
type ReleaseNameReply uint32

const (
	ReleaseNameReplyReleased ReleaseNameReply = 1 + iota
	ReleaseNameReplyNonExistent
	ReleaseNameReplyNotOwner
)

// StartServiceReply is the result code StartServiceByName returns.
type StartServiceReply uint32

const (
	StartServiceReplySuccess StartServiceReply = 1 + iota
	StartServiceReplyAlreadyRunning
)

const busName = "org.freedesktop.DBus"

// RequestName calls org.freedesktop.DBus.RequestName.
func (conn *Conn) RequestName(name string, flags RequestNameFlags) (RequestNameReply, error) {
	var r uint32
	call := conn.BusObject().Call(busName+".RequestName", 0, name, uint32(flags))
	if err := call.Store(&r); err != nil {
		return 0, err
	}
	return RequestNameReply(r), nil
}

// ReleaseName calls org.freedesktop.DBus.ReleaseName.
func (conn *Conn) ReleaseName(name string) (ReleaseNameReply, error) {
	var r uint32
	call := conn.BusObject().Call(busName+".ReleaseName", 0, name)
	if err := call.Store(&r); err != nil {
		return 0, err
	}
	return ReleaseNameReply(r), nil
}

// StartServiceByName calls org.freedesktop.DBus.StartServiceByName.
func (conn *Conn) StartServiceByName(name string, flags uint32) (StartServiceReply, error) {
	var r uint32
	call := conn.BusObject().Call(busName+".StartServiceByName", 0, name, flags)
	if err := call.Store(&r); err != nil {
		return 0, err
	}
	return StartServiceReply(r), nil
}

// NameHasOwner calls org.freedesktop.DBus.NameHasOwner.
func (conn *Conn) NameHasOwner(name string) (bool, error) {
	var b bool
	call := conn.BusObject().Call(busName+".NameHasOwner", 0, name)
	if err := call.Store(&b); err != nil {
		return false, err
	}
	return b, nil
}

// ListNames calls org.freedesktop.DBus.ListNames.
func (conn *Conn) ListNames() ([]string, error) {
	var names []string
	call := conn.BusObject().Call(busName+".ListNames", 0)
	if err := call.Store(&names); err != nil {
		return nil, err
	}
	return names, nil
}

// ListActivatableNames calls org.freedesktop.DBus.ListActivatableNames.
func (conn *Conn) ListActivatableNames() ([]string, error) {
	var names []string
	call := conn.BusObject().Call(busName+".ListActivatableNames", 0)
	if err := call.Store(&names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetNameOwner calls org.freedesktop.DBus.GetNameOwner.
func (conn *Conn) GetNameOwner(name string) (string, error) {
	var owner string
	call := conn.BusObject().Call(busName+".GetNameOwner", 0, name)
	if err := call.Store(&owner); err != nil {
		return "", err
	}
	return owner, nil
}

// ListQueuedOwners calls org.freedesktop.DBus.ListQueuedOwners.
func (conn *Conn) ListQueuedOwners(name string) ([]string, error) {
	var owners []string
	call := conn.BusObject().Call(busName+".ListQueuedOwners", 0, name)
	if err := call.Store(&owners); err != nil {
		return nil, err
	}
	return owners, nil
}

// GetId calls org.freedesktop.DBus.GetId, returning the bus daemon's UUID.
func (conn *Conn) GetId() (string, error) {
	var id string
	call := conn.BusObject().Call(busName+".GetId", 0)
	if err := call.Store(&id); err != nil {
		return "", err
	}
	return id, nil
}

// GetConnectionUnixUser calls org.freedesktop.DBus.GetConnectionUnixUser.
func (conn *Conn) GetConnectionUnixUser(name string) (uint32, error) {
	var uid uint32
	call := conn.BusObject().Call(busName+".GetConnectionUnixUser", 0, name)
	if err := call.Store(&uid); err != nil {
		return 0, err
	}
	return uid, nil
}

// GetConnectionUnixProcessID calls org.freedesktop.DBus.GetConnectionUnixProcessID.
func (conn *Conn) GetConnectionUnixProcessID(name string) (uint32, error) {
	var pid uint32
	call := conn.BusObject().Call(busName+".GetConnectionUnixProcessID", 0, name)
	if err := call.Store(&pid); err != nil {
		return 0, err
	}
	return pid, nil
}
