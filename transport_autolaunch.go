package dbus

import (
	"bytes"
	"errors"
	"os/exec"
)

func init() {
	transports["autolaunch"] = newAutolaunchTransport
}

// newAutolaunchTransport implements the "autolaunch:" transport: it shells
// out to dbus-launch to discover (starting one if necessary) the per-user
// session bus, then dials the address it reports.
func newAutolaunchTransport(addr Address) (transport, error) {
	cmd := exec.Command("dbus-launch")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, err
	}
	eq := bytes.IndexByte(out, '=')
	nl := bytes.IndexByte(out, '\n')
	if eq == -1 || nl == -1 || eq > nl {
		return nil, errors.New("dbus: autolaunch: couldn't determine session bus address")
	}
	addrs, err := ParseAddresses(string(out[eq+1 : nl]))
	if err != nil {
		return nil, err
	}
	return dialAddresses(addrs)
}
